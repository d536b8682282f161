package prelink

import (
	"go.uber.org/zap"

	"github.com/mabhi256/jarc/internal/meta"
)

// CanArchiveResolvedClass decides whether a resolved class entry in
// holder's constant pool may be stored in the archive: the entry must be
// guaranteed to resolve to the same class at both dump time and run time.
//
// As a side effect, a reference from a platform/app class to a preloaded
// class owned by a different loader is recorded in that loader's
// initiated-classes ledger, so the reference cannot force an unwanted
// delegation event at startup.
func (p *Prelinker) CanArchiveResolvedClass(holder, target *meta.Class) bool {
	if target == nil {
		return false
	}

	if holder.Hidden {
		// A hidden holder has no stable identity across runs.
		return false
	}

	if holder.IsSubtypeOf(target) {
		// All supertypes of holder are resolved in holder's loader
		// before holder itself is defined, so the reference is safe
		// under any loader configuration.
		return true
	}

	if p.IsVMClass(holder) {
		return p.IsVMClass(target)
	}

	if p.IsPreloaded(target) {
		switch holder.Loader {
		case meta.PlatformLoader:
			if target.Loader != meta.PlatformLoader {
				p.recordInitiated(p.platformInitiated, meta.PlatformLoader, holder, target)
			}
			return true
		case meta.AppLoader:
			if target.Loader != meta.AppLoader {
				p.recordInitiated(p.appInitiated, meta.AppLoader, holder, target)
			}
			return true
		case meta.BootLoader:
			// Boot holder, preloaded target: nothing to record, the
			// boot loader initiates everything it references.
			return true
		}
	}

	return false
}

func (p *Prelinker) recordInitiated(list *classList, l meta.Loader, holder, target *meta.Class) {
	if list.add(target) {
		p.log.Debug("loader initiated",
			zap.Stringer("loader", l),
			zap.String("holder", holder.ExternalName()),
			zap.String("target", target.ExternalName()))
	}
}

// CanArchiveResolvedField decides whether a resolved field entry may be
// archived: the class reference must itself be archivable, the field must
// resolve by name and descriptor, and it must not be static — static field
// access can trigger class initialization, which archive replay must never
// force.
func (p *Prelinker) CanArchiveResolvedField(holder *meta.Class, entry *meta.PoolEntry) bool {
	target := p.resolvedMemberClass(holder, entry)
	if target == nil {
		return false
	}
	f, ok := target.FindField(entry.MemberName, entry.Descriptor)
	if !ok || f.Static {
		return false
	}
	return true
}

// CanArchiveResolvedMethod mirrors the field check for method entries.
func (p *Prelinker) CanArchiveResolvedMethod(holder *meta.Class, entry *meta.PoolEntry) bool {
	return p.resolvedMemberClass(holder, entry) != nil
}

// resolvedMemberClass returns the already-resolved target class of a
// field/method entry if that class reference is itself archivable, else
// nil.
func (p *Prelinker) resolvedMemberClass(holder *meta.Class, entry *meta.PoolEntry) *meta.Class {
	if !entry.Resolved || entry.ResolvedClass == nil {
		// Not yet resolved; nothing to archive.
		return nil
	}
	if !p.CanArchiveResolvedClass(holder, entry.ResolvedClass) {
		// The target class may have a different definition at run time.
		return nil
	}
	return entry.ResolvedClass
}
