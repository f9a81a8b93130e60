package parse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UploadFile stores body as a Parse file. Parse prefixes the returned name to keep it unique.
func (c *Client) UploadFile(ctx context.Context, name, contentType string, body io.Reader) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("file name is required")
	}
	var out fileRef
	if err := c.do(ctx, "upload_file", http.MethodPost, "files/"+url.PathEscape(name), nil, asApp, contentType, body, &out); err != nil {
		return "", "", err
	}
	return out.Name, out.URL, nil
}

// DeleteFile removes a stored file. Parse requires the master key for this.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name is required")
	}
	return c.do(ctx, "delete_file", http.MethodDelete, "files/"+url.PathEscape(name), nil, asMaster, "", nil, nil)
}
