package prelink

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/meta"
)

// ResolveConstants performs the dump-time constant-pool resolution pass
// for one class. It runs at most once per class per dump (tracked through
// the processed set), so repeated archive passes are idempotent.
//
// String entries are interned; an interning failure is propagated, never
// swallowed — a failed dump beats an inconsistent symbol table. Class
// entries are only eagerly resolved for regenerated holder classes, so the
// archive does not pin resolutions the training run never made.
func (p *Prelinker) ResolveConstants(c *meta.Class, archiveStrings bool) error {
	if !c.Linked {
		return nil
	}
	if p.processed[c] {
		return nil
	}
	p.processed[c] = true

	if c.Pool == nil {
		return nil
	}

	if archiveStrings {
		// The archived heap only exists for the static archive.
		for i := 1; i < len(c.Pool.Entries); i++ {
			e := &c.Pool.Entries[i]
			if e.Tag != meta.TagString || e.Resolved {
				continue
			}
			if err := p.resolveString(c, e); err != nil {
				return fmt.Errorf("resolving string constant %d of %s: %w", i, c.ExternalName(), err)
			}
		}
	}

	if MayBeRegeneratedClass(c.Name.String()) {
		p.PreresolveClassEntries(c, nil)
		p.PreresolveMemberEntries(c, nil)
	}
	return nil
}

func (p *Prelinker) resolveString(c *meta.Class, e *meta.PoolEntry) error {
	sym, err := p.env.Symtab().Intern(e.Value.String())
	if err != nil {
		return err
	}
	e.Value = sym
	e.Resolved = true
	return nil
}

// PreresolveClassEntries resolves unresolved class entries whose targets
// are already loaded. If filter is non-nil, only entries the training run
// actually resolved are attempted; resolving more would let the compiler
// inline code that never ran.
func (p *Prelinker) PreresolveClassEntries(c *meta.Class, filter []bool) {
	if c.Pool == nil || !c.Loader.IsBuiltin() {
		return
	}
	for i := 1; i < len(c.Pool.Entries); i++ {
		e := &c.Pool.Entries[i]
		if e.Tag != meta.TagUnresolvedClass {
			continue
		}
		if filter != nil && (i >= len(filter) || !filter[i]) {
			continue
		}
		target := p.env.FindLoaded(e.ClassName, c.Loader)
		if target == nil {
			// Never resolve a class that has not been loaded yet.
			continue
		}
		if target.Hidden {
			// Access checks on generated inner-class metadata can
			// fail; leave the entry unresolved.
			p.log.Debug("class resolution rejected",
				zap.String("holder", c.ExternalName()),
				zap.String("target", target.ExternalName()))
			continue
		}
		c.Pool.ResolveClass(i, target)
		p.log.Debug("resolved class entry",
			zap.Int("index", i),
			zap.String("holder", c.ExternalName()),
			zap.String("target", target.ExternalName()))
	}
}

// PreresolveMemberEntries resolves field and method entries whose target
// class entry is loaded, applying the same filter discipline.
func (p *Prelinker) PreresolveMemberEntries(c *meta.Class, filter []bool) {
	if c.Pool == nil {
		return
	}
	for i := 1; i < len(c.Pool.Entries); i++ {
		e := &c.Pool.Entries[i]
		if e.Tag != meta.TagField && e.Tag != meta.TagMethod {
			continue
		}
		if e.Resolved {
			continue
		}
		if filter != nil && (i >= len(filter) || !filter[i]) {
			continue
		}
		target := p.env.FindLoaded(e.ClassName, c.Loader)
		if target == nil {
			continue
		}
		if e.Tag == meta.TagField {
			if _, ok := target.FindField(e.MemberName, e.Descriptor); !ok {
				continue
			}
		}
		e.ResolvedClass = target
		e.Resolved = true
	}
}

// PruneUnarchivableResolutions reverts resolved entries the oracle rejects
// back to their unresolved form. The archive builder calls this on the
// buffered copy of a pool, with the live holder supplying the eligibility
// context, so live metadata is never mutated.
func (p *Prelinker) PruneUnarchivableResolutions(c *meta.Class, pool *meta.ConstantPool) {
	if pool == nil {
		return
	}
	for i := 1; i < len(pool.Entries); i++ {
		e := &pool.Entries[i]
		switch e.Tag {
		case meta.TagClass:
			if e.Resolved && !p.CanArchiveResolvedClass(c, e.ResolvedClass) {
				e.Tag = meta.TagUnresolvedClass
				e.ResolvedClass = nil
				e.Resolved = false
			}
		case meta.TagField:
			if e.Resolved && !p.CanArchiveResolvedField(c, e) {
				e.ResolvedClass = nil
				e.Resolved = false
			}
		case meta.TagMethod:
			if e.Resolved && !p.CanArchiveResolvedMethod(c, e) {
				e.ResolvedClass = nil
				e.Resolved = false
			}
		}
	}
}
