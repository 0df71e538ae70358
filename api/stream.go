package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var keepAliveInterval = 25 * time.Second

// streamBoard pushes the team's board as Server-Sent Events. EventSource
// cannot set headers, so the token may come from the query string.
func streamBoard(stream Stream, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.ActorFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		teamID := c.QueryParam("teamId")
		if teamID == "" {
			return c.String(http.StatusBadRequest, "missing teamId")
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		frames, initial, cancel, err := stream.Subscribe(ctx, teamID)
		if err != nil {
			return respondError(c, err)
		}
		defer cancel()

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		if err := writeEvent(c, initial); err != nil {
			return err
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case frame, ok := <-frames:
				if !ok {
					return nil
				}
				if err := writeEvent(c, frame); err != nil {
					return err
				}
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					c.Logger().Error(err)
					return err
				}
			}
			flusher.Flush()
		}
	}
}

func writeEvent(c echo.Context, data []byte) error {
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		c.Logger().Error(err)
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		c.Logger().Error(err)
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		c.Logger().Error(err)
		return err
	}
	return nil
}
