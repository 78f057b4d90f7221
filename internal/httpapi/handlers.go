package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/configstore"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/export"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/redact"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

const (
	defaultPageSize = 100
	maxBodyBytes    = 4 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler provides the REST endpoints of a session.
type Handler struct {
	s        *app.Session
	defaults Defaults
}

func NewHandler(s *app.Session, d Defaults) *Handler {
	if d.Mode == "" {
		d.Mode = schema.IngestModeSDTM
	}
	if d.Direction == "" {
		d.Direction = schema.DirectionZhToEn
	}
	return &Handler{s: s, defaults: d}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/datasets/read", h.ReadDatasets)
	api.GET("/datasets", h.ListDatasets)
	api.GET("/datasets/:name", h.PreviewDataset)
	api.GET("/datasets/:name/source-variables", h.SourceVariables)

	api.POST("/merge", h.Merge)
	api.POST("/mapping-configs", h.SaveMapping)
	api.GET("/mapping-configs", h.GetMapping)
	api.POST("/translation-library-configs", h.SaveLibrary)
	api.GET("/translation-library-configs", h.GetLibrary)

	api.POST("/worklists", h.Worklists)
	api.GET("/worklists.xlsx", h.WorklistsXLSX)
	api.POST("/worklists/translate", h.TranslateWorklists)
	api.POST("/translate", h.Translate)
}

type readRequest struct {
	Path              string `json:"path"`
	Mode              string `json:"mode"`
	Direction         string `json:"translation_direction"`
	HideSuppInPreview *bool  `json:"hide_supp_in_preview"`
}

type catalogResponse struct {
	Path     string             `json:"path"`
	Flags    sdtm.Flags         `json:"flags"`
	Datasets []sdtm.DatasetInfo `json:"datasets"`
}

// ReadDatasets handles POST /api/datasets/read.
func (h *Handler) ReadDatasets(c echo.Context) error {
	var req readRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Path) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	mode := h.defaults.Mode
	if req.Mode != "" {
		mode = schema.NormalizeMode(req.Mode)
	}
	dir := h.defaults.Direction
	if req.Direction != "" {
		dir = schema.NormalizeDirection(req.Direction)
	}

	info, err := h.s.Ingest(c.Request().Context(), app.IngestRequest{
		Path:              req.Path,
		Mode:              mode,
		Direction:         dir,
		HideSuppInPreview: req.HideSuppInPreview,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, redact.Error(err))
	}
	return c.JSON(http.StatusOK, h.catalog(info))
}

// ListDatasets handles GET /api/datasets.
func (h *Handler) ListDatasets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog(h.s.Info()))
}

func (h *Handler) catalog(info []sdtm.DatasetInfo) catalogResponse {
	if info == nil {
		info = []sdtm.DatasetInfo{}
	}
	return catalogResponse{Path: h.s.Path(), Flags: h.s.Catalog().Flags(), Datasets: info}
}

// PreviewDataset handles GET /api/datasets/:name with either page/page_size
// or offset/limit. limit=0 returns every row.
func (h *Handler) PreviewDataset(c echo.Context) error {
	offset, limit, err := pageParams(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.s.Preview(c.Param("name"), offset, limit)
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, p)
}

func pageParams(c echo.Context) (offset, limit int, err error) {
	intParam := func(name string, def int) (int, error) {
		raw := strings.TrimSpace(c.QueryParam(name))
		if raw == "" {
			return def, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, errors.New(name + " must be a non-negative integer")
		}
		return n, nil
	}

	if c.QueryParam("page") != "" || c.QueryParam("page_size") != "" {
		page, err := intParam("page", 1)
		if err != nil {
			return 0, 0, err
		}
		size, err := intParam("page_size", defaultPageSize)
		if err != nil {
			return 0, 0, err
		}
		if page < 1 {
			page = 1
		}
		return (page - 1) * size, size, nil
	}

	if offset, err = intParam("offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam("limit", defaultPageSize); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

// SourceVariables handles GET /api/datasets/:name/source-variables.
func (h *Handler) SourceVariables(c echo.Context) error {
	vars, supp, err := h.s.SourceVariables(c.Param("name"))
	if err != nil {
		return notFoundOr(err)
	}
	if vars == nil {
		vars = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"dataset":      strings.ToUpper(c.Param("name")),
		"supp_dataset": supp,
		"variables":    vars,
	})
}

// Merge handles POST /api/merge. The body is a rule list, bare or wrapped in
// {"configs": [...]}, in legacy or canonical form; ?name= labels the saved
// mapping config.
func (h *Handler) Merge(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "configs are required")
	}
	rules, err := sdtm.ParseRules(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.s.Path() == "" {
		return echo.NewHTTPError(http.StatusConflict, app.ErrNoDataset.Error())
	}

	rep, err := h.s.ApplyMerge(c.Request().Context(), c.QueryParam("name"), rules)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, redact.Error(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"report": rep,
		"flags":  h.s.Catalog().Flags(),
	})
}

// SaveMapping handles POST /api/mapping-configs. An empty path means the
// loaded directory.
func (h *Handler) SaveMapping(c echo.Context) error {
	var cfg configstore.MappingConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cfg.Path == "" {
		cfg.Path = h.s.Path()
	}
	if cfg.Mode == "" {
		cfg.Mode = h.s.Catalog().Mode()
	}
	if cfg.Direction == "" {
		cfg.Direction = h.s.Catalog().Flags().Direction
	}
	if err := h.s.SaveMapping(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, redact.Error(err))
	}
	saved, err := h.s.Mapping(c.Request().Context(), cfg.Path)
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// GetMapping handles GET /api/mapping-configs?path=.
func (h *Handler) GetMapping(c echo.Context) error {
	cfg, err := h.s.Mapping(c.Request().Context(), h.pathParam(c))
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// SaveLibrary handles POST /api/translation-library-configs.
func (h *Handler) SaveLibrary(c echo.Context) error {
	var cfg configstore.LibraryConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if cfg.Path == "" {
		cfg.Path = h.s.Path()
	}
	if cfg.Mode == "" {
		cfg.Mode = h.s.Catalog().Mode()
	}
	if cfg.Direction == "" {
		cfg.Direction = h.s.Catalog().Flags().Direction
	}
	if err := h.s.SaveLibrary(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, redact.Error(err))
	}
	saved, err := h.s.Library(c.Request().Context(), cfg.Path)
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// GetLibrary handles GET /api/translation-library-configs?path=.
func (h *Handler) GetLibrary(c echo.Context) error {
	cfg, err := h.s.Library(c.Request().Context(), h.pathParam(c))
	if err != nil {
		return notFoundOr(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) pathParam(c echo.Context) string {
	if p := strings.TrimSpace(c.QueryParam("path")); p != "" {
		return p
	}
	return h.s.Path()
}

// bindRoles reads an optional role config body. An empty body keeps the
// session's roles; a non-empty one replaces them.
func (h *Handler) bindRoles(c echo.Context) (terms.RoleConfig, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return terms.RoleConfig{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return h.s.Roles(), nil
	}
	cfg, err := terms.ParseRoleConfig(body)
	if err != nil {
		return terms.RoleConfig{}, err
	}
	h.s.SetRoles(cfg)
	return cfg, nil
}

// Worklists handles POST /api/worklists.
func (h *Handler) Worklists(c echo.Context) error {
	cfg, err := h.bindRoles(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.s.Worklists(&cfg))
}

// WorklistsXLSX handles GET /api/worklists.xlsx using the session's roles.
func (h *Handler) WorklistsXLSX(c echo.Context) error {
	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, h.s.Worklists(nil)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="worklists.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// TranslateWorklists handles POST /api/worklists/translate: every worklist
// item is translated and the rows are returned.
func (h *Handler) TranslateWorklists(c echo.Context) error {
	cfg, err := h.bindRoles(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rows, err := h.s.TranslateWorklists(c.Request().Context(), h.s.Worklists(&cfg), nil, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, redact.Error(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"rows":   rows,
		"counts": translate.CountStatuses(rows),
	})
}

// Translate handles POST /api/translate.
func (h *Handler) Translate(c echo.Context) error {
	var req translate.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	res, err := h.s.Translate(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, redact.Error(err))
	}
	return c.JSON(http.StatusOK, res)
}

func notFoundOr(err error) error {
	if errors.Is(err, sdtm.ErrNotFound) || errors.Is(err, configstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, redact.Error(err))
}
