package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrEmptyDraft is returned when post-processing leaves nothing to publish.
var ErrEmptyDraft = errors.New("model returned empty draft")

var (
	outerFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*)\\n```$")
	preamble   = regexp.MustCompile(`(?i)^(here('s| is) (your|the|a) (linkedin )?(post|draft|revised post)[^\n]*:)\s*\n`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

var md = goldmark.New()

// PostProcess 把模型输出整理为可直接发布的纯文本。
// Markdown emphasis and headings are flattened; line structure, list markers,
// emojis and hashtags survive.
func PostProcess(raw string) (string, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if m := outerFence.FindStringSubmatch(s); len(m) == 2 {
		s = strings.TrimSpace(m[1])
	}
	s = strings.TrimSpace(preamble.ReplaceAllString(s, ""))
	if s == "" {
		return "", ErrEmptyDraft
	}

	out := strings.TrimSpace(PlainText([]byte(s)))
	if out == "" {
		return "", ErrEmptyDraft
	}
	return out, nil
}

// PlainText renders markdown source as plain text.
func PlainText(src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))
	w := &plainWriter{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		return w.visit(n, entering, src), nil
	})
	lines := strings.Split(w.sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

type plainWriter struct {
	sb strings.Builder
}

// breakLines ensures the output ends with at least n newlines.
func (w *plainWriter) breakLines(n int) {
	if w.sb.Len() == 0 {
		return
	}
	s := w.sb.String()
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		w.sb.WriteByte('\n')
	}
}

func (w *plainWriter) visit(n ast.Node, entering bool, src []byte) ast.WalkStatus {
	switch node := n.(type) {
	case *ast.Text:
		if entering {
			w.sb.Write(node.Segment.Value(src))
			if node.HardLineBreak() || node.SoftLineBreak() {
				w.sb.WriteByte('\n')
			}
		}
	case *ast.String:
		if entering {
			w.sb.Write(node.Value)
		}
	case *ast.AutoLink:
		if entering {
			w.sb.Write(node.URL(src))
		}
		return ast.WalkSkipChildren
	case *ast.Link:
		if !entering {
			fmt.Fprintf(&w.sb, " (%s)", node.Destination)
		}
	case *ast.Image, *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.sb.Write(seg.Value(src))
			}
			w.breakLines(2)
		}
		return ast.WalkSkipChildren
	case *ast.ListItem:
		if entering {
			w.breakLines(1)
			w.sb.WriteString(listMarker(node))
		}
	case *ast.List:
		if !entering {
			w.breakLines(2)
		}
	case *ast.TextBlock:
		if !entering {
			w.breakLines(1)
		}
	case *ast.Paragraph, *ast.Heading, *ast.ThematicBreak:
		if !entering {
			w.breakLines(2)
		}
	}
	return ast.WalkContinue
}

func listMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "- "
	}
	idx := list.Start
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		idx++
	}
	return fmt.Sprintf("%d. ", idx)
}
