package index

import (
	"fmt"
	"strconv"
	"strings"
)

// Posting is one document's weighted count for a term.
type Posting struct {
	DocID string
	Count int
}

// PostingList is the postings of one term in stored order.
type PostingList []Posting

// Update adds Count to the posting of DocID under TermID.
type Update struct {
	TermID int
	DocID  string
	Count  int
}

// TermEntry is one barrel line.
type TermEntry struct {
	TermID   int
	Postings PostingList
}

func formatLine(e TermEntry) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(e.TermID))
	sb.WriteByte('\t')
	for i, p := range e.Postings {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.DocID)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(p.Count))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// leadingTermID parses the integer before the first tab.
func leadingTermID(line string) (int, string, error) {
	head, rest, ok := strings.Cut(line, "\t")
	if !ok {
		return 0, "", fmt.Errorf("missing tab separator")
	}
	id, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", fmt.Errorf("term id %q: %w", head, err)
	}
	if id < 0 {
		return 0, "", fmt.Errorf("negative term id %d", id)
	}
	return id, rest, nil
}

// parsePostings splits "doc:count doc:count" tokens. The count follows the
// last colon so document IDs may themselves contain colons. Bad tokens are
// returned separately so callers can log them.
func parsePostings(rest string) (PostingList, []string) {
	fields := strings.Fields(rest)
	postings := make(PostingList, 0, len(fields))
	var bad []string
	for _, tok := range fields {
		i := strings.LastIndexByte(tok, ':')
		if i <= 0 || i == len(tok)-1 {
			bad = append(bad, tok)
			continue
		}
		count, err := strconv.Atoi(tok[i+1:])
		if err != nil {
			bad = append(bad, tok)
			continue
		}
		postings = append(postings, Posting{DocID: tok[:i], Count: count})
	}
	return postings, bad
}
