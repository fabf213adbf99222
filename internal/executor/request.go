package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/yes1688/arkprobe/internal/resolve"
	"github.com/yes1688/arkprobe/internal/suite"
)

// encodedBody is a request payload ready to send.
type encodedBody struct {
	data        []byte
	contentType string
}

// encodeBody serializes a JSON or multipart body. A nil body encodes to
// nil.
func encodeBody(b *suite.Body) (*encodedBody, error) {
	switch {
	case b == nil:
		return nil, nil //nolint:nilnil // no body
	case b.Multipart != nil:
		return encodeMultipart(b.Multipart)
	case b.JSON != nil:
		data, err := json.Marshal(b.JSON)
		if err != nil {
			return nil, fmt.Errorf("encoding JSON body: %w", err)
		}

		return &encodedBody{data: data, contentType: "application/json"}, nil
	default:
		return nil, nil //nolint:nilnil // empty body
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(m *suite.Multipart) (*encodedBody, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, fmt.Errorf("writing multipart field %s: %w", k, err)
		}
	}

	contentType := m.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(m.FieldName()), quoteEscaper.Replace(m.FileName)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("creating multipart file part: %w", err)
	}

	if _, err := io.WriteString(part, m.Content); err != nil {
		return nil, fmt.Errorf("writing multipart file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return &encodedBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

// buildRequest creates a fresh request for one attempt. Bodies are
// re-encoded every time so retries never send a drained reader.
func buildRequest(ctx context.Context, c *resolve.Case) (*http.Request, error) {
	eb, err := encodeBody(c.Body)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if eb != nil {
		body = bytes.NewReader(eb.data)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method, c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if eb != nil {
		req.Header.Set("Content-Type", eb.contentType)
	}

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// formatStatuses renders an expected-status set as "200, 201".
func formatStatuses(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}

	return strings.Join(parts, ", ")
}
