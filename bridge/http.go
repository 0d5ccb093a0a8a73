package bridge

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glimte/proxybridge/contracts"
)

const genericErrorMessage = "Something went wrong"

// ServeHTTP forwards the request to the peer and waits for its reply
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := b.nextID.Add(1) - 1

	entry, err := b.forward(r, id)
	if err != nil {
		b.logger.Error("failed to forward request",
			"reqId", id,
			"method", r.Method,
			"url", requestURI(r),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	b.await(w, r, entry)
}

// forward publishes the request and registers it as pending. Every failure,
// including a panic, is returned as an error local to this request.
func (b *Bridge) forward(r *http.Request, id uint64) (entry *pendingRequest, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.pending.take(id)
			entry = nil
			err = &RequestError{ReqID: id, Op: "forward", Err: fmt.Errorf("%v", rec)}
		}
	}()

	req, err := b.buildRequest(r, id)
	if err != nil {
		return nil, err
	}

	entry = newPendingRequest(req)
	if err := b.pending.put(entry); err != nil {
		return nil, &RequestError{ReqID: id, Op: "register", Err: err}
	}

	if err := b.SendReq(r.Context(), req); err != nil {
		b.pending.take(id)
		return nil, &RequestError{ReqID: id, Op: "publish", Err: err}
	}

	b.logger.Debug("request forwarded",
		"reqId", id,
		"method", req.Method,
		"url", req.URL,
	)
	return entry, nil
}

func (b *Bridge) buildRequest(r *http.Request, id uint64) (*contracts.ProxiedRequest, error) {
	uri := requestURI(r)
	req := &contracts.ProxiedRequest{
		ReqID:  id,
		Method: r.Method,
		URL:    uri,
	}

	if values, ok := r.Header["Content-Type"]; ok && len(values) > 0 {
		contentType := values[0]
		req.ContentType = &contentType
	}

	if _, qs, found := strings.Cut(uri, "?"); found && qs != "" {
		req.QueryString = &qs
	}

	// Bodies are read fully into memory before forwarding; there is no streaming.
	if b.ShouldBufferBody(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &RequestError{ReqID: id, Op: "read body", Err: err}
		}
		if len(data) > 0 {
			body := string(data)
			req.Body = &body
		}
	}

	return req, nil
}

// ShouldBufferBody reports whether the request body is forwarded: only POST and
// PUT requests carrying form or JSON content, or octet-stream content sent to a
// whitelisted URL
func (b *Bridge) ShouldBufferBody(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return false
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "form-urlencoded"):
		return true
	case strings.Contains(contentType, "application/json"):
		return true
	case strings.Contains(contentType, "application/octet-stream"):
		return b.octetStreamAllowed(requestURI(r))
	}
	return false
}

func (b *Bridge) octetStreamAllowed(uri string) bool {
	for _, re := range b.whitelist {
		if re.MatchString(uri) {
			return true
		}
	}
	return false
}

func (b *Bridge) await(w http.ResponseWriter, r *http.Request, entry *pendingRequest) {
	var timeout <-chan time.Time
	if b.replyTimeout > 0 {
		timer := time.NewTimer(b.replyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-entry.replies:
		b.writeReply(w, reply)

	case <-r.Context().Done():
		if b.pending.take(entry.id) != nil {
			b.logger.Debug("client went away before reply", "reqId", entry.id)
		}

	case <-timeout:
		if b.pending.take(entry.id) == nil {
			// The reply won the race and is already buffered.
			b.writeReply(w, <-entry.replies)
			return
		}
		b.logger.Warn("no reply from peer",
			"reqId", entry.id,
			"timeout", b.replyTimeout,
		)
		writeError(w, http.StatusGatewayTimeout,
			fmt.Errorf("no reply for request %d within %s", entry.id, b.replyTimeout))

	case <-b.done:
		// Stopped: the exchange is abandoned without a response.
		panic(http.ErrAbortHandler)
	}
}

func (b *Bridge) writeReply(w http.ResponseWriter, reply *contracts.Reply) {
	status := reply.StatusCode
	switch {
	case status == 0:
		status = http.StatusOK
	case status < 100 || status > 999:
		b.logger.Warn("peer replied with invalid status code",
			"reqId", reply.ReqID,
			"status", status,
		)
		status = http.StatusBadGateway
	}

	if reply.ContentType != "" {
		w.Header().Set("Content-Type", reply.ContentType)
	}
	w.WriteHeader(status)

	body := reply.Content
	if body == "" {
		// Empty content is sent as an empty JSON object.
		body = "{}"
	}
	if _, err := io.WriteString(w, body); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		b.logger.Warn("failed to write reply body", "reqId", reply.ReqID, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := genericErrorMessage
	if err != nil && err.Error() != "" {
		message = err.Error()
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	io.WriteString(w, message)
}

func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}
