package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
)

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.store.ListUsersWithLastAction(c.Request.Context())
	if err != nil {
		s.fail(c, "Failed to list users", err)
		return
	}
	respondOK(c, nonNil(users))
}

func (s *Server) userWheels(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid user id %q", c.Param("id")))
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.GetUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, fmt.Errorf("user %d not found", id))
			return
		}
		s.fail(c, "Failed to load user", err)
		return
	}

	wheels, err := s.store.ListUserWheels(ctx, id)
	if err != nil {
		s.fail(c, "Failed to list user wheels", err)
		return
	}
	out := make([]models.WheelSummary, 0, len(wheels))
	for _, w := range wheels {
		out = append(out, models.WheelSummary{
			ID:          w.ID,
			Name:        w.Name,
			CreatedAt:   w.CreatedAt,
			HasAnalysis: w.HasAnalysis(),
		})
	}
	respondOK(c, out)
}

func (s *Server) statistics(c *gin.Context) {
	stats, err := storage.CollectStatistics(c.Request.Context(), s.store, s.now())
	if err != nil {
		s.fail(c, "Failed to collect statistics", err)
		return
	}
	respondOK(c, stats)
}

func (s *Server) newUsers(c *gin.Context) {
	users, err := s.store.NewUsersSince(c.Request.Context(), s.now().Add(-storage.StatsWindow))
	if err != nil {
		s.fail(c, "Failed to list new users", err)
		return
	}
	respondOK(c, nonNil(users))
}

func (s *Server) usersWithWheels(c *gin.Context) {
	users, err := s.store.UsersWithWheelsSince(c.Request.Context(), s.now().Add(-storage.StatsWindow))
	if err != nil {
		s.fail(c, "Failed to list users with wheels", err)
		return
	}
	respondOK(c, nonNil(users))
}

func (s *Server) inactiveUsers(c *gin.Context) {
	to := s.now().Add(-storage.StatsWindow)
	users, err := s.store.InactiveUsers(c.Request.Context(), to.Add(-storage.StatsWindow), to)
	if err != nil {
		s.fail(c, "Failed to list inactive users", err)
		return
	}
	respondOK(c, nonNil(users))
}

func (s *Server) fail(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.Error(err), zap.String("route", c.FullPath()))
	respondError(c, http.StatusInternalServerError, err)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
