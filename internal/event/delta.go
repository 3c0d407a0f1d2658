package event

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// Op is one operation of a Delta: an insert (text or an opaque embed), a
// delete, or a retain. Counts are in runes.
type Op struct {
	Insert     string
	Embed      json.RawMessage // non-text insert, kept verbatim
	Delete     int
	Retain     int
	Attributes map[string]any
}

type opJSON struct {
	Insert     json.RawMessage `json:"insert,omitempty"`
	Delete     int             `json:"delete,omitempty"`
	Retain     int             `json:"retain,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// MarshalJSON encodes the op in the rich-text delta wire format.
func (o Op) MarshalJSON() ([]byte, error) {
	aux := opJSON{Delete: o.Delete, Retain: o.Retain, Attributes: o.Attributes}
	switch {
	case o.Insert != "":
		b, err := json.Marshal(o.Insert)
		if err != nil {
			return nil, err
		}
		aux.Insert = b
	case len(o.Embed) > 0:
		aux.Insert = o.Embed
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts both string inserts and object embeds.
func (o *Op) UnmarshalJSON(b []byte) error {
	var aux opJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*o = Op{Delete: aux.Delete, Retain: aux.Retain, Attributes: aux.Attributes}
	if len(aux.Insert) == 0 {
		return nil
	}
	if aux.Insert[0] == '"' {
		return json.Unmarshal(aux.Insert, &o.Insert)
	}
	o.Embed = slices.Clone(aux.Insert)
	return nil
}

// IsInsert reports whether the op inserts text or an embed.
func (o Op) IsInsert() bool { return o.Insert != "" || len(o.Embed) > 0 }

// IsDelete reports whether the op deletes content.
func (o Op) IsDelete() bool { return o.Delete > 0 }

// IsRetain reports whether the op retains content (possibly reformatting it).
func (o Op) IsRetain() bool { return o.Retain > 0 }

// Len is the number of runes the op covers. An embed counts as one.
func (o Op) Len() int {
	switch {
	case o.Insert != "":
		return utf8.RuneCountInString(o.Insert)
	case len(o.Embed) > 0:
		return 1
	case o.Delete > 0:
		return o.Delete
	}
	return o.Retain
}

// Delta is an ordered list of operations describing a document change.
type Delta struct {
	Ops []Op `json:"ops"`
}

// InsertAt builds a delta that inserts text at rune index at.
func InsertAt(at int, text string) Delta {
	var d Delta
	if at > 0 {
		d.Ops = append(d.Ops, Op{Retain: at})
	}
	d.Ops = append(d.Ops, Op{Insert: text})
	return d
}

// DeleteAt builds a delta that deletes n runes starting at rune index at.
func DeleteAt(at, n int) Delta {
	var d Delta
	if at > 0 {
		d.Ops = append(d.Ops, Op{Retain: at})
	}
	d.Ops = append(d.Ops, Op{Delete: n})
	return d
}

// Clone returns a deep copy of d.
func (d Delta) Clone() Delta {
	ops := make([]Op, len(d.Ops))
	for i, op := range d.Ops {
		op.Embed = slices.Clone(op.Embed)
		op.Attributes = maps.Clone(op.Attributes)
		ops[i] = op
	}
	return Delta{Ops: ops}
}

// HasInsert reports whether any op is an insert.
func (d Delta) HasInsert() bool {
	return slices.ContainsFunc(d.Ops, Op.IsInsert)
}

// HasDelete reports whether any op is a delete.
func (d Delta) HasDelete() bool {
	return slices.ContainsFunc(d.Ops, Op.IsDelete)
}

// HasEmbed reports whether any op inserts a non-text embed.
func (d Delta) HasEmbed() bool {
	return slices.ContainsFunc(d.Ops, func(o Op) bool { return len(o.Embed) > 0 })
}

// InsertedText concatenates the text of all insert ops.
func (d Delta) InsertedText() string {
	var b strings.Builder
	for _, op := range d.Ops {
		b.WriteString(op.Insert)
	}
	return b.String()
}

// Apply folds the delta over doc and returns the resulting text. Embeds
// have no textual form and are dropped; counts past the end of doc are
// truncated.
func (d Delta) Apply(doc string) string {
	src := []rune(doc)
	out := make([]rune, 0, len(src))
	for _, op := range d.Ops {
		switch {
		case op.Insert != "":
			out = append(out, []rune(op.Insert)...)
		case op.Delete > 0:
			src = src[min(op.Delete, len(src)):]
		case op.Retain > 0:
			n := min(op.Retain, len(src))
			out = append(out, src[:n]...)
			src = src[n:]
		}
	}
	return string(append(out, src...))
}

// TransformIndex maps a cursor index in the pre-change document to the
// post-change document. An insert exactly at the cursor pushes it forward.
func (d Delta) TransformIndex(index int) int {
	offset := 0
	for _, op := range d.Ops {
		if offset > index {
			break
		}
		n := op.Len()
		if op.IsDelete() {
			index -= min(n, index-offset)
			continue
		}
		if op.IsInsert() {
			index += n
		}
		offset += n
	}
	return index
}
