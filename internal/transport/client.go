package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ehrlich-b/wingterm/internal/config"
)

const (
	TestPath   = "/api/test"
	UploadPath = "/api/upload"

	requestTimeout = 30 * time.Second
)

// Client makes the one-shot HTTP calls that sit beside the streaming
// session: the connectivity test and file upload. It shares no state
// with the session and is safe to use concurrently with it.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

// NewClient builds a client for the request endpoint of targets.
func NewClient(targets config.Targets) *Client {
	return &Client{
		baseURL: strings.TrimRight(targets.RequestURL, "/"),
		auth:    targets.AuthHeader(),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// TestResult is the backend's answer to a connectivity test.
type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Test checks that the backend is reachable and accepts the credentials.
func (c *Client) Test(ctx context.Context) (*TestResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, TestPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connectivity test: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var r TestResult
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

// UploadRequest is one file upload. SessionID may be empty before the
// server has assigned one.
type UploadRequest struct {
	SessionID       string
	ClientMessageID string
	DestPath        string
	FileName        string
	Body            io.Reader
}

// UploadResult describes where the backend stored an upload.
type UploadResult struct {
	RemotePath string `json:"remotePath"`
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
}

// Upload streams the file as multipart/form-data.
func (c *Client) Upload(ctx context.Context, up UploadRequest) (*UploadResult, error) {
	if up.Body == nil || up.FileName == "" {
		return nil, fmt.Errorf("upload: no file")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, up))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, UploadPath, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", up.FileName, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var r UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

func writeUploadForm(mw *multipart.Writer, up UploadRequest) error {
	fields := [][2]string{
		{"sessionId", up.SessionID},
		{"clientMessageId", up.ClientMessageID},
		{"destPath", up.DestPath},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", up.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	return req, nil
}

func checkStatus(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errResp.Error)
		}
		if errResp.Message != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errResp.Message)
		}
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
