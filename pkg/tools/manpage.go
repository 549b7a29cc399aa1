package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"tuxpilot/pkg/proto"
)

// ToolManpage is the name of the man page lookup tool.
const ToolManpage = "manpage"

// ManpageTool looks up man page summaries on the local system via whatis
// and links the canonical man7.org page for citation.
type ManpageTool struct {
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewManpageTool creates a man page lookup tool.
func NewManpageTool() *ManpageTool {
	return &ManpageTool{runCommand: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Name returns the tool name.
func (t *ManpageTool) Name() string {
	return ToolManpage
}

// Exec looks up the query in the whatis database. The query is passed as a
// single argv element, never through a shell.
func (t *ManpageTool) Exec(ctx context.Context, query string) (*Result, error) {
	page := strings.TrimSpace(query)
	if page == "" {
		return nil, fmt.Errorf("man page name is required")
	}
	if strings.ContainsAny(page, " \t\n") {
		// whatis matches whole names; take the first token of a phrase.
		page = strings.Fields(page)[0]
	}

	out := &Result{
		Citations: []proto.Citation{{
			URL:       fmt.Sprintf("https://man7.org/linux/man-pages/man1/%s.1.html", url.PathEscape(page)),
			Title:     page + " man page",
			CrawledAt: time.Now().UTC(),
		}},
	}

	raw, err := t.runCommand(ctx, "whatis", "-l", page)
	if err != nil {
		// No local whatis database (or no such page). The citation link is
		// still useful, so report the miss rather than failing.
		out.Content = fmt.Sprintf("no local man page entry for %q", page)
		return out, nil
	}
	out.Content = strings.TrimSpace(string(raw))
	return out, nil
}
