package loader

// WellKnownClassNames lists the bootstrap classes the runtime resolves
// eagerly and atomically at startup, before any archive-driven preloading.
// Cross-references among them are always consistent, so the eligibility
// oracle treats them as a closed set.
var WellKnownClassNames = []string{
	"java/lang/Object",
	"java/lang/String",
	"java/lang/Class",
	"java/lang/Cloneable",
	"java/lang/ClassLoader",
	"java/io/Serializable",
	"java/lang/System",
	"java/lang/Throwable",
	"java/lang/Error",
	"java/lang/ThreadDeath",
	"java/lang/Exception",
	"java/lang/RuntimeException",
	"java/lang/SecurityManager",
	"java/security/ProtectionDomain",
	"java/security/AccessControlContext",
	"java/security/AccessController",
	"java/lang/ClassNotFoundException",
	"java/lang/Record",
	"java/lang/NoClassDefFoundError",
	"java/lang/LinkageError",
	"java/lang/ClassCastException",
	"java/lang/ArrayStoreException",
	"java/lang/VirtualMachineError",
	"java/lang/InternalError",
	"java/lang/OutOfMemoryError",
	"java/lang/StackOverflowError",
	"java/lang/IllegalMonitorStateException",
	"java/lang/ref/Reference",
	"java/lang/ref/SoftReference",
	"java/lang/ref/WeakReference",
	"java/lang/ref/FinalReference",
	"java/lang/ref/PhantomReference",
	"java/lang/ref/Finalizer",
	"java/lang/Thread",
	"java/lang/ThreadGroup",
	"java/util/Properties",
	"java/lang/Module",
	"java/lang/reflect/AccessibleObject",
	"java/lang/reflect/Field",
	"java/lang/reflect/Parameter",
	"java/lang/reflect/Method",
	"java/lang/reflect/Constructor",
	"java/lang/invoke/MethodHandle",
	"java/lang/invoke/VarHandle",
	"java/lang/invoke/MemberName",
	"java/lang/invoke/ResolvedMethodName",
	"java/lang/invoke/MethodHandleNatives",
	"java/lang/invoke/LambdaForm",
	"java/lang/invoke/MethodType",
	"java/lang/BootstrapMethodError",
	"java/lang/invoke/CallSite",
	"java/lang/invoke/MethodHandles",
	"java/lang/invoke/MethodHandles$Lookup",
	"java/lang/invoke/ConstantCallSite",
	"java/lang/invoke/MutableCallSite",
	"java/lang/invoke/VolatileCallSite",
	"java/lang/AssertionStatusDirectives",
	"java/lang/StringBuffer",
	"java/lang/StringBuilder",
	"java/lang/StackTraceElement",
	"java/nio/Buffer",
	"java/util/concurrent/locks/AbstractOwnableSynchronizer",
	"java/lang/Boolean",
	"java/lang/Character",
	"java/lang/Float",
	"java/lang/Double",
	"java/lang/Byte",
	"java/lang/Short",
	"java/lang/Integer",
	"java/lang/Long",
	"java/lang/Void",
	"java/lang/Iterable",
	"java/util/Iterator",
	"java/util/List",
	"java/util/Map",
	"java/util/HashMap",
	"java/util/ArrayList",
	"jdk/internal/vm/PostVMInitHook",
	"jdk/internal/loader/ClassLoaders",
	"jdk/internal/loader/ClassLoaders$AppClassLoader",
	"jdk/internal/loader/ClassLoaders$PlatformClassLoader",
	"jdk/internal/misc/UnsafeConstants",
	"jdk/internal/reflect/ConstantPool",
	"java/lang/StackWalker",
	"java/lang/StackStreamFactory$AbstractStackWalker",
	"java/lang/invoke/StringConcatFactory",
	"java/lang/invoke/LambdaMetafactory",
}
