package nodes

// promotions lists the implicit numeric promotions of the builtin classes.
var promotions = map[string][]string{
	"builtins.bool": {"builtins.int", "builtins.float"},
	"builtins.int":  {"builtins.float"},
}

// IsSubtype reports whether a value of type left can be used where right
// is expected.
func IsSubtype(left, right Type) bool {
	if left == nil || right == nil {
		return true
	}
	if _, ok := left.(*AnyType); ok {
		return true
	}
	if _, ok := right.(*AnyType); ok {
		return true
	}
	if r, ok := right.(*Instance); ok && r.Info.FullName == "builtins.object" {
		return true
	}
	switch l := left.(type) {
	case *NoneType:
		_, ok := right.(*NoneType)
		return ok
	case *Instance:
		r, ok := right.(*Instance)
		if !ok {
			return false
		}
		if l.Info == r.Info || l.Info.HasBase(r.Info.FullName) {
			return true
		}
		for _, p := range promotions[l.Info.FullName] {
			if p == r.Info.FullName {
				return true
			}
		}
		return false
	case *CallableType:
		r, ok := right.(*CallableType)
		if !ok {
			return false
		}
		if len(l.ArgTypes) != len(r.ArgTypes) {
			return false
		}
		for i := range l.ArgTypes {
			if !IsSubtype(r.ArgTypes[i], l.ArgTypes[i]) {
				return false
			}
		}
		return IsSubtype(l.RetType, r.RetType)
	case *TypeVarType:
		r, ok := right.(*TypeVarType)
		return ok && r.Fullname == l.Fullname
	}
	return false
}
