package headers

import "strings"

// pseudo-header names, which must precede ordinary headers and are
// suppressed from wire emission (with the :authority -> Host
// exception handled in write_headers).
const (
	PseudoMethod    = ":method"
	PseudoPath      = ":path"
	PseudoScheme    = ":scheme"
	PseudoAuthority = ":authority"
	PseudoStatus    = ":status"
)

func isPseudoHeader(name string) bool {
	switch name {
	case PseudoMethod, PseudoPath, PseudoScheme, PseudoAuthority, PseudoStatus:
		return true
	default:
		return false
	}
}

// HeaderField is one (name, value) entry. Names are always lowercase
// once inserted via Headers.Set/Add.
type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered multimap: iteration order is insertion order,
// but Get/Values offer O(1) lookup by lowercase name. Pseudo-headers
// are ordinary entries here; callers that need "ordinary headers
// only" iteration (write_headers) filter them out explicitly.
type Headers struct {
	fields []HeaderField
	index  map[string][]int
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{index: make(map[string][]int)}
}

// Add appends a field, lowercasing name. Multiple values for the same
// name are preserved in order (e.g. repeated Set-Cookie).
func (h *Headers) Add(name, value string) {
	name = strings.ToLower(name)
	h.index[name] = append(h.index[name], len(h.fields))
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all existing values for name with a single value,
// inserting at the position of the first existing occurrence or at
// the end if name is new.
func (h *Headers) Set(name, value string) {
	name = strings.ToLower(name)
	if idxs, ok := h.index[name]; ok && len(idxs) > 0 {
		h.fields[idxs[0]].Value = value
		// drop any additional prior occurrences
		for _, i := range idxs[1:] {
			h.fields[i].Name = ""
		}
		h.index[name] = idxs[:1]
		return
	}
	h.Add(name, value)
}

// Get returns the first value for name, and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	idxs, ok := h.index[name]
	if !ok || len(idxs) == 0 {
		return "", false
	}
	return h.fields[idxs[0]].Value, true
}

// Has reports whether name has at least one value.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Values returns every value recorded for name, in insertion order.
func (h *Headers) Values(name string) []string {
	name = strings.ToLower(name)
	idxs := h.index[name]
	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		if h.fields[i].Name != "" {
			out = append(out, h.fields[i].Value)
		}
	}
	return out
}

// Fields returns every (name, value) pair in insertion order,
// including pseudo-headers and tombstoned duplicates removed.
func (h *Headers) Fields() []HeaderField {
	out := make([]HeaderField, 0, len(h.fields))
	for _, f := range h.fields {
		if f.Name == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// OrdinaryFields is Fields filtered to exclude pseudo-headers, in the
// order write_headers must emit them.
func (h *Headers) OrdinaryFields() []HeaderField {
	all := h.Fields()
	out := make([]HeaderField, 0, len(all))
	for _, f := range all {
		if isPseudoHeader(f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// CommaList splits a comma-joined header value the way
// Transfer-Encoding and Connection are specified to be: comma
// separated, surrounding whitespace trimmed, empty tokens dropped.
func CommaList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CommaListHas reports whether token (case-insensitively) appears in
// the comma list.
func CommaListHas(value, token string) bool {
	for _, t := range CommaList(value) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

// LastCommaToken returns the last token of a comma list, used to
// check whether Transfer-Encoding "ends in chunked".
func LastCommaToken(value string) (string, bool) {
	parts := CommaList(value)
	if len(parts) == 0 {
		return "", false
	}
	return parts[len(parts)-1], true
}

// Clone copies the header set (used when handing a cached copy back
// to a caller that might mutate its return value — get_headers must
// remain idempotent and unaffected by caller mutation).
func (h *Headers) Clone() *Headers {
	out := NewHeaders()
	for _, f := range h.Fields() {
		out.Add(f.Name, f.Value)
	}
	return out
}
