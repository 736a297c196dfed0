package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/session"
	"go-fleet-console/internal/ws"
)

const reconnectDelay = 3 * time.Second

// HandleEvent applies a change notification from the collaborator. Reloads the
// operator is not allowed to perform are skipped.
func (c *Console) HandleEvent(ctx context.Context, ev ws.Event) error {
	switch ev.Type {
	case ws.EventPermissionsChanged:
		user, ok := c.cache.User()
		if !ok || (len(ev.IDs) > 0 && !slices.Contains(ev.IDs, user.ID)) {
			return nil
		}
		c.logger.Info("permissions changed, refetching", zap.String("user_id", user.ID))
		return c.RefreshPermissions(ctx)

	case ws.EventDirectoryChanged:
		var errs []error
		reloadDepartments := ev.Resource == "departments" || ev.Resource == "employees" || ev.Resource == ""
		reloadEmployees := ev.Resource == "employees" || ev.Resource == ""
		// lists already in flight may predate the change
		if reloadEmployees && c.CanPerform(permission.ModuleEmployee, permission.ActionRead) {
			c.coord.Forget(slotEmployees, "all")
			_, err := c.LoadEmployees(ctx)
			errs = append(errs, err)
		}
		if reloadDepartments && c.CanPerform(permission.ModuleDepartment, permission.ActionRead) {
			c.coord.Forget(slotDepartments, "all")
			_, err := c.LoadDepartments(ctx)
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return nil
}

// Listen follows the collaborator's change feed at wsURL until ctx ends,
// reconnecting after dropped connections
func (c *Console) Listen(ctx context.Context, wsURL string) error {
	dialer := websocket.DefaultDialer
	for {
		err := c.listenOnce(ctx, dialer, wsURL)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, session.ErrSessionInvalid) {
			return err
		}
		c.logger.Warn("event feed disconnected", zap.Error(err), zap.Duration("retry_in", reconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Console) listenOnce(ctx context.Context, dialer *websocket.Dialer, wsURL string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cache.Token())

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return c.collaborator("event feed", fmt.Errorf("%w: websocket upgrade refused", session.ErrSessionInvalid))
		}
		return err
	}
	defer conn.Close()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("event feed connected", zap.String("url", wsURL))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev ws.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("ignoring malformed event", zap.Error(err))
			continue
		}
		if err := c.HandleEvent(ctx, ev); err != nil {
			c.logger.Warn("event handling failed", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}
