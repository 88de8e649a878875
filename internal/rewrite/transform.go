package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// applyJSON rewrites the leaves addressed by dotted paths in a JSON
// document. Numeric path segments index into arrays. A path that does
// not resolve in this body is not an error, the rule simply has nothing
// to do there. Numbers are handled through json.Number so long digit
// strings survive the round trip.
func applyJSON(ctx context.Context, body []byte, targets []string, fn mapFunc) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse json body")
	}

	for _, target := range targets {
		segments := strings.Split(target, ".")
		var err error
		doc, err = rewritePath(ctx, doc, segments, fn)
		if err != nil {
			return nil, errors.Wrapf(err, "path %q", target)
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode json body")
	}
	return out, nil
}

func rewritePath(ctx context.Context, node any, segments []string, fn mapFunc) (any, error) {
	if len(segments) == 0 {
		return rewriteLeaf(ctx, node, fn)
	}

	seg := segments[0]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[seg]
		if !ok {
			return node, nil
		}
		replaced, err := rewritePath(ctx, child, segments[1:], fn)
		if err != nil {
			return nil, err
		}
		n[seg] = replaced
		return n, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return node, nil
		}
		replaced, err := rewritePath(ctx, n[idx], segments[1:], fn)
		if err != nil {
			return nil, err
		}
		n[idx] = replaced
		return n, nil
	default:
		return node, nil
	}
}

func rewriteLeaf(ctx context.Context, node any, fn mapFunc) (any, error) {
	switch v := node.(type) {
	case string:
		return fn(ctx, v)
	case json.Number:
		return fn(ctx, v.String())
	default:
		return node, nil
	}
}

// applyForm rewrites named fields in a urlencoded body. Every value of
// a repeated field is rewritten. Absent fields are skipped.
func applyForm(ctx context.Context, body []byte, targets []string, fn mapFunc) ([]byte, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse form body")
	}

	for _, field := range targets {
		vs, ok := values[field]
		if !ok {
			continue
		}
		for i, v := range vs {
			mapped, err := fn(ctx, v)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", field)
			}
			vs[i] = mapped
		}
	}
	return []byte(values.Encode()), nil
}

// applyRegex rewrites every match of each target pattern.
func applyRegex(ctx context.Context, body []byte, targets []string, fn mapFunc) ([]byte, error) {
	out := string(body)
	for _, pattern := range targets {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", pattern)
		}

		var b strings.Builder
		last := 0
		for _, loc := range re.FindAllStringIndex(out, -1) {
			b.WriteString(out[last:loc[0]])
			mapped, err := fn(ctx, out[loc[0]:loc[1]])
			if err != nil {
				return nil, errors.Wrapf(err, "pattern %q", pattern)
			}
			b.WriteString(mapped)
			last = loc[1]
		}
		b.WriteString(out[last:])
		out = b.String()
	}
	return []byte(out), nil
}
