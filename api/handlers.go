package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
	"scrum-board/storage"
)

const (
	maxBodySize          = 64 << 10
	maxActivityLimit     = 200
	headerIdempotencyKey = "Idempotency-Key"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/stream", streamBoard(svc.Stream, auth))

	g := e.Group("/api", GzipRequestMiddleware(), RequireActor(auth))
	g.GET("/profile", getProfile(svc.Profiles))
	g.PUT("/profile", putProfile(svc.Profiles))

	g.GET("/teams", listTeams(svc.Teams))
	g.POST("/teams", createTeam(svc.Teams))
	g.GET("/teams/:teamId", getTeam(svc.Teams))
	g.PATCH("/teams/:teamId", renameTeam(svc.Teams))
	g.DELETE("/teams/:teamId", deleteTeam(svc.Teams))
	g.POST("/teams/:teamId/members", inviteMember(svc.Teams))
	g.DELETE("/teams/:teamId/members/me", leaveTeam(svc.Teams))
	g.GET("/teams/:teamId/lists", getLists(svc.Teams))

	g.GET("/teams/:teamId/board", getBoard(svc.Cards))
	g.POST("/teams/:teamId/cards", createCard(svc.Cards))
	g.PATCH("/teams/:teamId/cards/:cardId", editCard(svc.Cards))
	g.DELETE("/teams/:teamId/cards/:cardId", deleteCard(svc.Cards))
	g.POST("/teams/:teamId/moves", postMove(svc.Cards, deduper, logger))

	g.GET("/teams/:teamId/cards/:cardId/comments", listComments(svc.Comments))
	g.POST("/teams/:teamId/cards/:cardId/comments", addComment(svc.Comments))
	g.DELETE("/teams/:teamId/cards/:cardId/comments/:commentId", deleteComment(svc.Comments))

	g.GET("/teams/:teamId/sprints", listSprints(svc.Sprints))
	g.POST("/teams/:teamId/sprints", createSprint(svc.Sprints))
	g.POST("/teams/:teamId/sprints/:sprintId/start", startSprint(svc.Sprints))
	g.POST("/teams/:teamId/sprints/:sprintId/complete", completeSprint(svc.Sprints))
	g.DELETE("/teams/:teamId/sprints/:sprintId", deleteSprint(svc.Sprints))

	g.GET("/teams/:teamId/activities", getActivities(svc.Feed))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMove), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStaleBoard), errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrActiveSprintExists), errors.Is(err, domain.ErrInvalidSprintTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func respondError(c echo.Context, err error) error {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	if errors.Is(err, domain.ErrConcurrencyConflict) || errors.Is(err, domain.ErrStaleBoard) {
		// The client should reload the board and replay the gesture.
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.String(status, err.Error())
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func getProfile(profiles Profiles) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, err := profiles.Profile(c.Request().Context(), actorOf(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, u)
	}
}

func putProfile(profiles Profiles) echo.HandlerFunc {
	return func(c echo.Context) error {
		var edit domain.ProfileEdit
		if err := decodeBody(c, &edit); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		u, err := profiles.UpdateProfile(c.Request().Context(), actorOf(c), edit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, u)
	}
}

type teamRequest struct {
	Name string `json:"name"`
}

type createTeamResponse struct {
	Team  domain.Team   `json:"team"`
	Lists []domain.List `json:"lists"`
}

func listTeams(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := teams.TeamsFor(c.Request().Context(), actorOf(c).ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func createTeam(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req teamRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		team, lists, err := teams.CreateTeam(c.Request().Context(), actorOf(c), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, createTeamResponse{Team: team, Lists: lists})
	}
}

func getTeam(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		team, err := teams.Team(c.Request().Context(), c.Param("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, team)
	}
}

func renameTeam(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req teamRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		team, err := teams.RenameTeam(c.Request().Context(), actorOf(c), c.Param("teamId"), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, team)
	}
}

func deleteTeam(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := teams.DeleteTeam(c.Request().Context(), actorOf(c), c.Param("teamId")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type inviteRequest struct {
	Email string `json:"email"`
}

func inviteMember(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req inviteRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		team, err := teams.InviteMember(c.Request().Context(), actorOf(c), c.Param("teamId"), req.Email)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, team)
	}
}

func leaveTeam(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := teams.LeaveTeam(c.Request().Context(), actorOf(c), c.Param("teamId")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getLists(teams Teams) echo.HandlerFunc {
	return func(c echo.Context) error {
		lists, err := teams.Lists(c.Request().Context(), c.Param("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, lists)
	}
}

func getBoard(cards Cards) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := cards.Board(c.Request().Context(), c.Param("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func createCard(cards Cards) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.NewCard
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		card, err := cards.CreateCard(c.Request().Context(), actorOf(c), c.Param("teamId"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

func editCard(cards Cards) echo.HandlerFunc {
	return func(c echo.Context) error {
		var edit domain.CardEdit
		if err := decodeBody(c, &edit); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		card, err := cards.EditCard(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("cardId"), edit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, card)
	}
}

func deleteCard(cards Cards) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := cards.DeleteCard(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("cardId")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postMove(cards Cards, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newMoveRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		var moveErr error
		defer func() {
			metrics.Log(c.Response().Status, moveErr)
		}()

		actor := actorOf(c)
		teamID := c.Param("teamId")
		metrics.SetTeam(teamID)

		var mv domain.MoveDescriptor
		if err := decodeBody(c, &mv); err != nil {
			metrics.SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		metrics.SetCrossList(mv.CrossList())

		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if key != "" && deduper != nil {
			added, err := deduper.Add(ctx, actor.ID, key)
			switch {
			case err != nil:
				log.WithError(err).WithField("team", teamID).Warn("move deduper unavailable; applying without idempotency")
				key = ""
			case !added:
				metrics.SetDuplicate()
				return c.JSON(http.StatusOK, domain.MoveResult{Status: domain.MoveDuplicate})
			}
		} else {
			key = ""
		}

		start := time.Now()
		res, err := cards.MoveCard(ctx, actor, teamID, mv)
		metrics.ObserveApply(time.Since(start), string(res.Status), res.Issued, res.Failed)
		if key != "" && (err != nil || res.Status == domain.MoveAbandoned) {
			if rerr := deduper.Remove(context.WithoutCancel(ctx), actor.ID, key); rerr != nil {
				log.WithError(rerr).WithFields(log.Fields{"key": key, "user": actor.ID}).Error("dedupe rollback failed")
			}
		}
		if err != nil {
			metrics.SetErrorStage("apply")
			moveErr = err
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

type commentRequest struct {
	Text string `json:"text"`
}

func listComments(comments Comments) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := comments.Comments(c.Request().Context(), c.Param("cardId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func addComment(comments Comments) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req commentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		cm, err := comments.AddComment(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("cardId"), req.Text)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, cm)
	}
}

func deleteComment(comments Comments) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := comments.DeleteComment(c.Request().Context(), actorOf(c), c.Param("cardId"), c.Param("commentId")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listSprints(sprints Sprints) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := sprints.Sprints(c.Request().Context(), c.Param("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func createSprint(sprints Sprints) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.NewSprint
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sp, err := sprints.CreateSprint(c.Request().Context(), actorOf(c), c.Param("teamId"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, sp)
	}
}

func startSprint(sprints Sprints) echo.HandlerFunc {
	return func(c echo.Context) error {
		sp, err := sprints.StartSprint(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("sprintId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, sp)
	}
}

func completeSprint(sprints Sprints) echo.HandlerFunc {
	return func(c echo.Context) error {
		sp, err := sprints.CompleteSprint(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("sprintId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, sp)
	}
}

func deleteSprint(sprints Sprints) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := sprints.DeleteSprint(c.Request().Context(), actorOf(c), c.Param("teamId"), c.Param("sprintId")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getActivities(feed Feed) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := storage.DefaultActivityLimit
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = min(n, maxActivityLimit)
		}
		out, err := feed.ListActivities(c.Request().Context(), c.Param("teamId"), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}
