package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/google/uuid"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// APIError is a non-2xx answer from the REST surface.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

type restClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func (r *restClient) do(ctx context.Context, method, path string, body any, dst any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&envelope); err != nil {
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices || !envelope.Success {
		return &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: strings.TrimSpace(envelope.Error)}
	}
	if dst == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (r *restClient) messagesAfter(ctx context.Context, conversationID uuid.UUID, afterID int64) ([]models.ChatMessage, error) {
	query := url.Values{}
	query.Set("afterId", strconv.FormatInt(afterID, 10))
	query.Set("limit", strconv.Itoa(resyncPageSize))

	var history struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	path := "/api/v1/conversations/" + conversationID.String() + "/messages?" + query.Encode()
	if err := r.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return history.Messages, nil
}

func (r *restClient) conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

type sendRequest struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	PropertyID string `json:"propertyId,omitempty"`
}

type sendResponse struct {
	Message        models.ChatMessage `json:"message"`
	ConversationID uuid.UUID          `json:"conversationId"`
	Live           bool               `json:"live"`
}

func (r *restClient) send(ctx context.Context, receiverID uuid.UUID, propertyID, text string) (*sendResponse, error) {
	var out sendResponse
	err := r.do(ctx, http.MethodPost, "/api/chatting", sendRequest{
		ReceiverID: receiverID.String(),
		Text:       text,
		PropertyID: propertyID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
