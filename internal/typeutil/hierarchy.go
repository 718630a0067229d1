package typeutil

// Hierarchy answers supertype queries about named classes.
type Hierarchy interface {
	// SuperOf returns the direct superclass of name.
	SuperOf(name string) (string, bool)
	// InterfacesOf returns the direct interfaces of name.
	InterfacesOf(name string) []string
}

const objectClass = "java/lang/Object"

// IsAssignable reports whether a value of class from can be assigned to a
// variable of class to, walking superclasses and interfaces.
//
// Unknown classes are only assignable to themselves and to java/lang/Object.
func IsAssignable(h Hierarchy, from, to string) bool {
	from, to = ClassName(from), ClassName(to)
	if from == to || to == objectClass {
		return true
	}
	visited := make(map[string]bool)
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == to {
			return true
		}
		if sup, ok := h.SuperOf(cur); ok {
			queue = append(queue, sup)
		}
		queue = append(queue, h.InterfacesOf(cur)...)
	}
	return false
}

// Supertypes returns name followed by all of its supertypes in breadth-first
// order, without duplicates.
func Supertypes(h Hierarchy, name string) []string {
	var out []string
	visited := make(map[string]bool)
	queue := []string{ClassName(name)}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, cur)
		if sup, ok := h.SuperOf(cur); ok {
			queue = append(queue, sup)
		}
		queue = append(queue, h.InterfacesOf(cur)...)
	}
	return out
}
