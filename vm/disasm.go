package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the code. heap may be nil;
// when given, constant-pool entries are rendered with their contents.
func (c *CompiledCode) Disassemble(heap *Heap) string {
	var sb strings.Builder

	name := c.Name
	if name == "" {
		name = "<anonymous>"
	}
	sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	if len(c.Params) > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s\n", len(c.Params), strings.Join(c.Params, ", ")))
	}

	if len(c.Lits) > 0 {
		sb.WriteString("; Literals:\n")
		for i, id := range c.Lits {
			display := fmt.Sprintf("<ptr %d>", id)
			if heap != nil {
				if obj, err := heap.Lookup(id); err == nil {
					display = obj.Describe()
				} else {
					display += " (dangling)"
				}
			}
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
	}

	sb.WriteString("; Code:\n")
	for pc, in := range c.Ops {
		line := in.String()
		if in.Op == OpJump {
			line = fmt.Sprintf("%-24s ; -> %d", line, int64(pc)+1+in.Arg)
		}
		sb.WriteString(fmt.Sprintf("%04d  %s\n", pc, line))
	}
	return sb.String()
}

// maxDescribeDepth bounds nesting in Describe output.
const maxDescribeDepth = 16

// Describe renders v, following heap pointers.
func (in *Interp) Describe(v Value) string {
	var sb strings.Builder
	describeValue(&sb, in.Heap, v, 0)
	return sb.String()
}

func describeValue(sb *strings.Builder, heap *Heap, v Value, depth int) {
	if !v.IsPtr() {
		sb.WriteString(v.String())
		return
	}
	if depth >= maxDescribeDepth {
		sb.WriteString("...")
		return
	}
	obj, err := heap.Deref(v)
	if err != nil {
		sb.WriteString(v.String() + "?")
		return
	}
	switch obj.Kind {
	case ObjString:
		sb.WriteString(fmt.Sprintf("%q", obj.Str))
	case ObjSome:
		sb.WriteString("some(")
		describeValue(sb, heap, obj.Head, depth+1)
		sb.WriteString(")")
	case ObjStruct:
		sb.WriteString("{")
		for i, f := range obj.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			describeValue(sb, heap, f, depth+1)
		}
		sb.WriteString("}")
	case ObjList:
		items, err := heap.ListValues(v)
		if err != nil {
			sb.WriteString(obj.Describe())
			return
		}
		sb.WriteString("[")
		for i, item := range items {
			if i > 0 {
				sb.WriteString("; ")
			}
			describeValue(sb, heap, item, depth+1)
		}
		sb.WriteString("]")
	default:
		sb.WriteString(obj.Describe())
	}
}
