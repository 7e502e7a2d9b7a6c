// Copyright 2025 The OpenRPKI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package updown

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/rpkid/model"
)

// DefaultClientTimeout is the default timeout of a request to a parent.
const DefaultClientTimeout = 30 * time.Second

// maxReplySize bounds the size of a reply read from a parent.
const maxReplySize = 16 << 20

// Transport carries a signed request to a parent and returns the signed
// reply.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// HTTPTransport is a Transport over HTTP.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport whose requests time out after
// timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

// Post implements Transport.
func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "updown.post")
	defer span.Finish()
	ext.HTTPUrl.Set(span, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, serrors.Wrap("creating request", err, "url", url)
	}
	req.Header.Set("Content-Type", ContentType)
	_ = opentracing.GlobalTracer().Inject(span.Context(), opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(req.Header))
	rep, err := t.Client.Do(req)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, serrors.Wrap("posting request", err, "url", url)
	}
	defer rep.Body.Close()
	ext.HTTPStatusCode.Set(span, uint16(rep.StatusCode))
	raw, err := io.ReadAll(io.LimitReader(rep.Body, maxReplySize))
	if err != nil {
		return nil, serrors.Wrap("reading reply", err, "url", url)
	}
	if rep.StatusCode != http.StatusOK {
		return nil, serrors.New("unexpected status", "url", url, "status", rep.StatusCode,
			"body", string(bytes.TrimSpace(raw[:min(len(raw), 256)])))
	}
	return raw, nil
}

// Client sends requests of a self to its parent.
type Client struct {
	Transport Transport
	Verifier  *cms.Verifier
	Identity  cms.Identity
}

// Call sends q to the parent and returns the reply. An error_response is
// returned as *Error. A reply of another type than expected is an error.
func (c *Client) Call(ctx context.Context, parent *model.Parent, q *Message,
	expected Type) (*Message, error) {

	q.Version = Version
	q.Sender, q.Recipient = parent.SenderName, parent.RecipientName
	raw, err := Marshal(q)
	if err != nil {
		return nil, err
	}
	signed, err := c.Identity.Sign(raw)
	if err != nil {
		return nil, err
	}
	reply, err := c.Transport.Post(ctx, parent.PeerContactURI, signed)
	if err != nil {
		return nil, err
	}
	msg, err := c.Verifier.Verify(reply, parent.BPKICert)
	if err != nil {
		return nil, serrors.Wrap("verifying reply", err, "parent", parent.Handle)
	}
	r, err := Parse(msg.Content)
	if err != nil {
		return nil, serrors.Wrap("parsing reply", err, "parent", parent.Handle)
	}
	switch r.Type {
	case expected:
		return r, nil
	case TypeError:
		e := &Error{Code: r.Status}
		if r.Description != nil {
			e.Description = r.Description.Text
		}
		return nil, e
	default:
		return nil, serrors.New("unexpected reply type", "parent", parent.Handle,
			"expected", expected, "actual", r.Type)
	}
}
