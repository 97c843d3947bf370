package triage

import (
	"context"
	"strings"

	"github.com/dshills/support-triage/graph/tool"
)

// Directory is a tool.Tool mapping a sender's email domain to a customer
// user ID.
//
// Input:
//   - email: sender address (required)
//
// Output:
//   - user_id: the customer ID, empty when the domain is unknown
//   - found: whether the domain is known
type Directory struct {
	byDomain map[string]string
}

// NewDirectory creates a Directory. Domains are matched case-insensitively.
func NewDirectory(domains map[string]string) *Directory {
	byDomain := make(map[string]string, len(domains))
	for d, id := range domains {
		byDomain[strings.ToLower(d)] = id
	}
	return &Directory{byDomain: byDomain}
}

// Name implements tool.Tool.
func (d *Directory) Name() string { return "user_directory" }

// Call implements tool.Tool.
func (d *Directory) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email, err := tool.StringParam(input, "email")
	if err != nil {
		return nil, err
	}
	id, ok := d.Lookup(email)
	return map[string]interface{}{"user_id": id, "found": ok}, nil
}

// Lookup returns the user ID for the domain of email.
func (d *Directory) Lookup(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", false
	}
	id, ok := d.byDomain[strings.ToLower(strings.TrimSpace(email[at+1:]))]
	return id, ok
}
