package fits

var (
	axisPrefixes   = []string{"CD", "CR", "CT", "CU", "NA", "PC"}
	deletePrefixes = []string{"CD", "CR", "CT", "CU", "NA"}
)

// Flatten returns a two-dimensional copy of h: WCS keywords that refer to a
// third or higher axis are renamed with an "A" prefix so they no longer
// describe the image, NAXIS becomes 2 and WCSAXES (when set) becomes 2.
func (h *Header) Flatten() *Header {
	return FlattenHeader(h, false)
}

// FlattenHeader is Flatten with an option to drop the higher-axis keywords
// instead of renaming them.
func FlattenHeader(h *Header, deleteKeys bool) *Header {
	out := h.Clone()
	if out == nil {
		out = &Header{}
	}

	for _, key := range h.Keys() {
		if len(key) < 2 || !out.Has(key) {
			continue
		}
		prefix := key[:2]

		last, ok := digitAt(key, len(key)-1)
		if !ok {
			continue
		}
		if deleteKeys && last >= 3 && hasPrefix(deletePrefixes, prefix) {
			out.Delete(key)
		} else {
			higher := last >= 3
			if !higher {
				third, ok := digitAt(key, 2)
				if !ok {
					continue
				}
				higher = third >= 3
			}
			if higher && hasPrefix(axisPrefixes, prefix) {
				out.Rename(key, "A"+key)
			}
		}

		if deleteKeys && prefix == "PC" && out.Has(key) {
			fifth, ok := digitAt(key, 4)
			if !ok {
				continue
			}
			if fifth >= 3 {
				out.Delete(key)
				continue
			}
			eighth, ok := digitAt(key, 7)
			if ok && eighth >= 3 {
				out.Delete(key)
			}
		}
	}

	out.Set("NAXIS", int64(2), "")
	if v, ok := h.Get("WCSAXES"); ok && truthy(v) {
		out.Set("WCSAXES", int64(2), "")
	}
	return out
}

func digitAt(key string, i int) (int, bool) {
	if i < 0 || i >= len(key) {
		return 0, false
	}
	c := key[i]
	if c < '0' || c > '9' {
		return 0, false
	}
	return int(c - '0'), true
}

func hasPrefix(prefixes []string, p string) bool {
	for _, s := range prefixes {
		if s == p {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return false
}
