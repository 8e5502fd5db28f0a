package nostr

import gonostr "github.com/nbd-wtf/go-nostr"

// Filter is a NIP-01 subscription filter with the NIP-50 search extension.
// Tag filters are keyed by the single-letter tag name without the '#'.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
	Search  string
}

// Lib converts to the go-nostr filter, which owns the wire encoding.
func (f Filter) Lib() gonostr.Filter {
	lf := gonostr.Filter{
		IDs:     f.IDs,
		Kinds:   f.Kinds,
		Authors: f.Authors,
		Limit:   f.Limit,
		Search:  f.Search,
	}
	if len(f.Tags) > 0 {
		lf.Tags = make(gonostr.TagMap, len(f.Tags))
		for k, v := range f.Tags {
			lf.Tags[k] = v
		}
	}
	if f.Since != nil {
		ts := gonostr.Timestamp(*f.Since)
		lf.Since = &ts
	}
	if f.Until != nil {
		ts := gonostr.Timestamp(*f.Until)
		lf.Until = &ts
	}
	return lf
}

func FilterFromLib(lf gonostr.Filter) Filter {
	f := Filter{
		IDs:     lf.IDs,
		Kinds:   lf.Kinds,
		Authors: lf.Authors,
		Limit:   lf.Limit,
		Search:  lf.Search,
	}
	if len(lf.Tags) > 0 {
		f.Tags = make(map[string][]string, len(lf.Tags))
		for k, v := range lf.Tags {
			f.Tags[k] = v
		}
	}
	if lf.Since != nil {
		v := int64(*lf.Since)
		f.Since = &v
	}
	if lf.Until != nil {
		v := int64(*lf.Until)
		f.Until = &v
	}
	return f
}

func (f Filter) MarshalJSON() ([]byte, error) {
	lf := f.Lib()
	return lf.MarshalJSON()
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var lf gonostr.Filter
	if err := lf.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = FilterFromLib(lf)
	return nil
}

// Matches applies every constraint except limit and search, which are
// relay-side concerns.
func (f Filter) Matches(ev Event) bool {
	lf := f.Lib()
	lib := ev.Lib()
	return lf.Matches(&lib)
}
