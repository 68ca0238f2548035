package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// textMessage mirrors websocket.TextMessage so the rest of the package
// does not depend on gorilla directly.
const textMessage = websocket.TextMessage

// GorillaDialer is the production Dialer, backed by gorilla/websocket.
func GorillaDialer(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}
