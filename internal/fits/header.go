package fits

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	cardWidth       = 80
	commentaryWidth = cardWidth - 8
	// maxStringWidth is the longest quoted-escaped string that fits after
	// "KEYWORD = '" with its closing quote.
	maxStringWidth = cardWidth - 12
	continueKey    = "CONTINUE"
)

// Card is a single header record. Value is one of bool, int64, float64,
// string or nil (undefined value, or a commentary card).
type Card struct {
	Key     string
	Value   any
	Comment string
}

// Header is an ordered list of cards describing an HDU and its WCS.
type Header struct {
	cards []Card
}

// NewHeader builds a header from cards, normalizing their values.
func NewHeader(cards ...Card) *Header {
	h := &Header{}
	for _, c := range cards {
		c.Key = strings.ToUpper(strings.TrimSpace(c.Key))
		c.Value = normalizeValue(c.Value)
		h.cards = append(h.cards, c)
	}
	return h
}

// Len returns the number of cards.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.cards)
}

// Cards returns a copy of the cards in order.
func (h *Header) Cards() []Card {
	if h == nil {
		return nil
	}
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// Keys returns the card keys in order. Commentary keys may repeat.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	keys := make([]string, len(h.cards))
	for i, c := range h.cards {
		keys[i] = c.Key
	}
	return keys
}

// Index returns the position of the first card with key, or -1.
func (h *Header) Index(key string) int {
	if h == nil {
		return -1
	}
	key = strings.ToUpper(key)
	for i, c := range h.cards {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	return h.Index(key) >= 0
}

// Get returns the value of the first card with key.
func (h *Header) Get(key string) (any, bool) {
	i := h.Index(key)
	if i < 0 {
		return nil, false
	}
	return h.cards[i].Value, true
}

// Float returns a numeric value as float64.
func (h *Header) Float(key string) (float64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Int returns an integer value. Floats with an integral value are accepted.
func (h *Header) Int(key string) (int, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// StringValue returns a string value.
func (h *Header) StringValue(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns a logical value.
func (h *Header) Bool(key string) (bool, bool) {
	v, ok := h.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Set replaces the value of key in place, or appends a new card. An empty
// comment keeps the existing one. Commentary keys always append.
func (h *Header) Set(key string, value any, comment string) {
	key = strings.ToUpper(strings.TrimSpace(key))
	value = normalizeValue(value)
	if !isCommentary(key) {
		if i := h.Index(key); i >= 0 {
			h.cards[i].Value = value
			if comment != "" {
				h.cards[i].Comment = comment
			}
			return
		}
	}
	h.cards = append(h.cards, Card{Key: key, Value: value, Comment: comment})
}

// Delete removes every card with key and reports whether any was removed.
func (h *Header) Delete(key string) bool {
	key = strings.ToUpper(key)
	kept := h.cards[:0]
	removed := false
	for _, c := range h.cards {
		if c.Key == key {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	h.cards = kept
	return removed
}

// Rename changes the key of the first card named from to to, keeping its
// position. An existing card named to is removed first.
func (h *Header) Rename(from, to string) bool {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if h.Index(from) < 0 {
		return false
	}
	if from != to {
		h.Delete(to)
	}
	h.cards[h.Index(from)].Key = to
	return true
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	return &Header{cards: h.Cards()}
}

// Shape returns the (rows, cols) grid described by NAXIS2 and NAXIS1.
func (h *Header) Shape() (rows, cols int, err error) {
	cols, ok1 := h.Int("NAXIS1")
	rows, ok2 := h.Int("NAXIS2")
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("fits: header has no NAXIS1/NAXIS2")
	}
	if rows <= 0 || cols <= 0 {
		return 0, 0, fmt.Errorf("fits: invalid grid %dx%d", cols, rows)
	}
	return rows, cols, nil
}

// Text renders the header as 80-column card lines terminated by END, the
// layout Montage expects for header templates.
func (h *Header) Text() string {
	var b strings.Builder
	_ = h.WriteText(&b)
	return b.String()
}

// WriteText writes the card lines, one per line, followed by END. String
// values too long for one card use the CONTINUE long-string convention.
func (h *Header) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, c := range h.cards {
		if c.Key == "END" {
			continue
		}
		for _, line := range formatCard(c) {
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return err
			}
		}
	}
	if _, err := bw.WriteString(padCard("END") + "\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// ParseHeader reads card text. Lines may be shorter than 80 columns and the
// value indicator may sit anywhere in the first ten columns. CONTINUE cards
// are joined onto the preceding &-terminated string. Parsing stops at END.
func ParseHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		for _, rec := range splitRecords(line) {
			if strings.TrimSpace(rec) == "" {
				continue
			}
			c, err := parseCard(rec)
			if err != nil {
				return nil, fmt.Errorf("fits: line %d: %w", lineNo, err)
			}
			if c.Key == "END" {
				return h, nil
			}
			if c.Key == continueKey && c.Value != nil {
				if h.continueString(c) {
					continue
				}
				c = Card{Key: continueKey, Comment: strings.TrimRight(rec[min(8, len(rec)):], " ")}
			}
			h.cards = append(h.cards, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// continueString appends a CONTINUE card to the previous string value when
// that value ends with '&'.
func (h *Header) continueString(c Card) bool {
	next, ok := c.Value.(string)
	if !ok || len(h.cards) == 0 {
		return false
	}
	prev := &h.cards[len(h.cards)-1]
	cur, ok := prev.Value.(string)
	if !ok || !strings.HasSuffix(cur, "&") {
		return false
	}
	prev.Value = strings.TrimSuffix(cur, "&") + next
	switch {
	case prev.Comment == "":
		prev.Comment = c.Comment
	case c.Comment != "":
		prev.Comment += " " + c.Comment
	}
	return true
}

// splitRecords handles headers dumped without newlines (raw 2880-byte blocks).
func splitRecords(line string) []string {
	if len(line) <= cardWidth {
		return []string{line}
	}
	var out []string
	for len(line) > 0 {
		n := min(cardWidth, len(line))
		out = append(out, line[:n])
		line = line[n:]
	}
	return out
}

func parseCard(line string) (Card, error) {
	head := line[:min(8, len(line))]
	if i := strings.Index(head, "="); i >= 0 {
		head = head[:i]
	}
	key := strings.ToUpper(strings.TrimSpace(head))
	rest := ""
	if len(line) > 8 {
		rest = strings.TrimRight(line[8:], " ")
	}

	if key == continueKey {
		if value, comment, err := parseValue(rest); err == nil {
			if v, ok := value.(string); ok {
				return Card{Key: key, Value: v, Comment: comment}, nil
			}
		}
		return Card{Key: key, Comment: rest}, nil
	}
	if isCommentary(key) {
		return Card{Key: key, Comment: rest}, nil
	}

	eq := strings.Index(line, "=")
	if eq < 0 || eq > 9 {
		return Card{Key: key, Comment: rest}, nil
	}
	key = strings.ToUpper(strings.TrimSpace(line[:eq]))
	value, comment, err := parseValue(line[eq+1:])
	if err != nil {
		return Card{}, fmt.Errorf("%s: %w", key, err)
	}
	return Card{Key: key, Value: value, Comment: comment}, nil
}

func parseValue(field string) (any, string, error) {
	s := strings.TrimLeft(field, " ")
	if strings.HasPrefix(s, "'") {
		var b strings.Builder
		i := 1
		for ; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			b.WriteByte(s[i])
		}
		if i >= len(s) {
			return nil, "", fmt.Errorf("unterminated string value")
		}
		return strings.TrimRight(b.String(), " "), trailingComment(s[i+1:]), nil
	}

	raw, comment := s, ""
	if slash := strings.Index(s, "/"); slash >= 0 {
		raw, comment = s[:slash], strings.TrimSpace(s[slash+1:])
	}
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, comment, nil
	case raw == "T":
		return true, comment, nil
	case raw == "F":
		return false, comment, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, comment, nil
	}
	f, err := strconv.ParseFloat(strings.NewReplacer("D", "E", "d", "e").Replace(raw), 64)
	if err != nil {
		return nil, "", fmt.Errorf("cannot parse value %q", raw)
	}
	return f, comment, nil
}

func trailingComment(rest string) string {
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return strings.TrimSpace(rest[slash+1:])
	}
	return ""
}

func formatCard(c Card) []string {
	key := fmt.Sprintf("%-8s", c.Key)
	if isCommentary(c.Key) {
		var lines []string
		text := c.Comment
		for len(text) > commentaryWidth {
			lines = append(lines, key+text[:commentaryWidth])
			text = text[commentaryWidth:]
		}
		return append(lines, padCard(key+text))
	}
	var val string
	switch v := c.Value.(type) {
	case nil:
		val = fmt.Sprintf("%20s", "")
	case bool:
		val = fmt.Sprintf("%20s", map[bool]string{true: "T", false: "F"}[v])
	case int64:
		val = fmt.Sprintf("%20d", v)
	case float64:
		val = fmt.Sprintf("%20s", formatFloat(v))
	case string:
		quoted := strings.ReplaceAll(v, "'", "''")
		if len(quoted) > maxStringWidth {
			return formatLongString(key, v, c.Comment)
		}
		val = fmt.Sprintf("'%-8s'", quoted)
		if len(val) < 20 {
			val = fmt.Sprintf("%-20s", val)
		}
	default:
		val = fmt.Sprintf("%20v", v)
	}
	out := key + "= " + val
	if c.Comment != "" {
		out += " / " + c.Comment
	}
	return []string{padCard(out)}
}

// formatLongString splits v over a keyword card and CONTINUE cards. Every
// chunk but the last ends with '&'; quote pairs are never split.
func formatLongString(key, v, comment string) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	for i := 0; i < len(v); i++ {
		esc := v[i : i+1]
		if v[i] == '\'' {
			esc = "''"
		}
		if cur.Len()+len(esc) > maxStringWidth-1 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(esc)
	}
	chunks = append(chunks, cur.String())

	lines := make([]string, len(chunks))
	for i, chunk := range chunks {
		prefix := key + "= "
		if i > 0 {
			prefix = continueKey + "  "
		}
		if i < len(chunks)-1 {
			lines[i] = padCard(prefix + "'" + chunk + "&'")
			continue
		}
		out := prefix + "'" + chunk + "'"
		if comment != "" {
			out += " / " + comment
		}
		lines[i] = padCard(out)
	}
	return lines
}

func formatFloat(v float64) string {
	s := strings.ToUpper(strconv.FormatFloat(v, 'G', -1, 64))
	if strings.ContainsAny(s, ".N") {
		return s
	}
	if i := strings.Index(s, "E"); i >= 0 {
		return s[:i] + ".0" + s[i:]
	}
	return s + ".0"
}

func padCard(s string) string {
	if len(s) >= cardWidth {
		return s[:cardWidth]
	}
	return s + strings.Repeat(" ", cardWidth-len(s))
}

func isCommentary(key string) bool {
	return key == "COMMENT" || key == "HISTORY" || key == "" || key == continueKey
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case nil, bool, int64, float64, string:
		return v
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return fmt.Sprint(v)
	}
}
