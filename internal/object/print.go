package object

import (
	"fmt"
	"strconv"

	"github.com/slate-lang/slate/internal/value"
)

// Format renders a value the way the PRINT instruction shows it.
func (h *Heap) Format(v value.Value) string {
	switch v.T {
	case value.Nil:
		return "nil"
	case value.Bool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case value.Num:
		return strconv.FormatFloat(v.AsNum(), 'g', -1, 64)
	case value.Obj:
		return h.formatObject(v.AsObj())
	}
	return "?"
}

func (h *Heap) formatObject(handle value.Handle) string {
	o := h.Get(handle)
	if o == nil {
		return fmt.Sprintf("obj#%d", handle)
	}
	switch o.Kind {
	case KindString:
		return o.Str
	case KindFunction:
		if o.Fn.Name == "" {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", o.Fn.Name)
	case KindNative:
		return "<native fn>"
	case KindMap:
		return fmt.Sprintf("<map %d>", o.Map.Fields.Len()+o.Map.Index.Len())
	}
	return "?"
}
