package server

import (
	"net/http"
	"strconv"
	"time"

	"matchstats/internal/apperr"
	"matchstats/internal/ingest"
	"matchstats/internal/model"
	"matchstats/internal/statistics"

	"github.com/gin-gonic/gin"
)

// statisticsQuery is the query string accepted by the player endpoints
type statisticsQuery struct {
	From         string `form:"from"`
	To           string `form:"to"`
	RoundID      uint   `form:"round_id"`
	GameID       string `form:"game_id"`
	GameModeID   uint   `form:"game_mode_id"`
	GameMode     string `form:"game_mode"`
	RankedOnly   bool   `form:"ranked_only"`
	OnlyFinished *bool  `form:"only_finished"`
	Sort         string `form:"sort"`
	Direction    string `form:"dir"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

func bindFilter(c *gin.Context) (statistics.Filter, error) {
	const op = "server.bind_filter"

	var q statisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return statistics.Filter{}, apperr.Validation(op, "invalid query: %v", err)
	}

	filter := statistics.Filter{
		RoundID:            q.RoundID,
		GameID:             q.GameID,
		GameModeID:         q.GameModeID,
		GameModeName:       q.GameMode,
		RankedOnly:         q.RankedOnly,
		OnlyFinishedRounds: q.OnlyFinished,
		Sort:               statistics.SortField(q.Sort),
		Direction:          statistics.Direction(q.Direction),
		Page:               q.Page,
		PageSize:           q.PageSize,
	}

	var err error
	if filter.From, err = parseTime(op, "from", q.From); err != nil {
		return statistics.Filter{}, err
	}
	if filter.To, err = parseTime(op, "to", q.To); err != nil {
		return statistics.Filter{}, err
	}

	if id := c.Param("id"); id != "" {
		if filter.PlayerID, err = parsePlayerID(op, id); err != nil {
			return statistics.Filter{}, err
		}
	}
	return filter, nil
}

func parseTime(op, name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperr.Validation(op, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

func parsePlayerID(op, value string) (uint64, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, apperr.Validation(op, "malformed player id %q", value)
	}
	return id, nil
}

func (s *Server) playersHandler(c *gin.Context) {
	filter, err := bindFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	page, err := s.stc.PlayerStatistics(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (s *Server) playerHandler(c *gin.Context) {
	filter, err := bindFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	page, err := s.stc.PlayerStatistics(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(page.Rows) == 0 {
		abortWithError(c, apperr.NotFound("server.player", "no statistics for player %d", filter.PlayerID))
		return
	}

	c.JSON(http.StatusOK, page.Rows[0])
}

func (s *Server) playerWeaponsHandler(c *gin.Context) {
	filter, err := bindFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	weapons, err := s.stc.PlayerWeaponStatistics(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"weapons": weapons})
}

func (s *Server) countsHandler(c *gin.Context) {
	counts, err := s.stc.Counts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, counts)
}

func (s *Server) submitReportHandler(c *gin.Context) {
	var report ingest.RoundReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	async := c.Query("async") == "true"

	result, err := s.stc.SubmitReport(c.Request.Context(), report, async)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// maxBatchReports caps one backlog upload
const maxBatchReports = 500

func (s *Server) submitReportsHandler(c *gin.Context) {
	var req struct {
		Reports []ingest.RoundReport `json:"reports"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Reports) == 0 || len(req.Reports) > maxBatchReports {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reports must hold between 1 and 500 entries"})
		return
	}

	metrics := s.stc.SubmitReports(c.Request.Context(), req.Reports)

	status := http.StatusOK
	if metrics.FailureCount > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, metrics)
}

func (s *Server) finishGameHandler(c *gin.Context) {
	var req struct {
		EndedAt time.Time `json:"ended_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.EndedAt.IsZero() {
		req.EndedAt = time.Now()
	}

	if err := s.stc.FinishGame(c.Request.Context(), c.Param("id"), req.EndedAt); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) deleteGameHandler(c *gin.Context) {
	if err := s.stc.DeleteGame(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) gameReportsHandler(c *gin.Context) {
	docs, err := s.stc.GameReports(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": docs})
}

func (s *Server) saveMatchConfigHandler(c *gin.Context) {
	var cfg model.MatchConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	saved, err := s.stc.SaveMatchConfig(c.Request.Context(), cfg)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, saved)
}

func (s *Server) matchConfigHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid match config id"})
		return
	}

	cfg, err := s.stc.MatchConfig(c.Request.Context(), uint(id))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) createBanHandler(c *gin.Context) {
	var req statistics.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ban, err := s.stc.CreateBan(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ban)
}
