package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ipintel/internal/config"
	"ipintel/internal/model"
	"ipintel/internal/service"
	"ipintel/internal/utils"
)

type Handler struct {
	Engine *service.Engine
	Geo    *service.GeoService
	RDNS   *service.RDNSService
	Probe  *service.UpstreamProbe
	Config *config.Config
}

func NewHandler(engine *service.Engine, cfg *config.Config) *Handler {
	return &Handler{
		Engine: engine,
		Geo:    service.NewGeoService(cfg.GeoIPDBPath),
		RDNS:   service.NewRDNSService(cfg.DNSResolver),
		Config: cfg,
	}
}

// Query handles GET /api/ip/query. The single-query call blocks until
// the upstream answers or times out; item-level failures come back as
// a 200 with an error-status result.
func (h *Handler) Query(c echo.Context) error {
	ip := c.QueryParam("ip")
	if ip == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required parameter: ip")
	}
	if !utils.IsPlausibleIP(ip) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid IP address: %s", ip))
	}

	method := strings.ToUpper(c.QueryParam("method"))
	if method != "" && method != http.MethodGet && method != http.MethodPost {
		return echo.NewHTTPError(http.StatusBadRequest, "method must be GET or POST")
	}

	res, err := h.Engine.QuerySingle(c.Request().Context(), ip, c.QueryParam("proxy"), method)
	if err != nil {
		return h.engineError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// BatchQuery handles POST /api/ip/batch-query. The response is always
// full length and input ordered; per-item failures never turn into an
// HTTP error.
func (h *Handler) BatchQuery(c echo.Context) error {
	var req model.BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.IPs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ips must be a non-empty array")
	}
	for _, ip := range req.IPs {
		if !utils.IsPlausibleIP(ip) {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid IP address: %s", ip))
		}
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeThread
	}

	results, err := h.Engine.QueryBatch(c.Request().Context(), req.IPs, req.Proxy, mode)
	if err != nil {
		return h.engineError(err)
	}

	return c.JSON(http.StatusOK, model.BatchResponse{
		Status:  "success",
		Total:   len(results),
		Mode:    mode,
		Results: results,
	})
}

func (h *Handler) Health(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "ipintel",
	}
	if h.Probe != nil {
		resp["upstream"] = h.Probe.Last()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RDNSLookup(c echo.Context) error {
	ip := c.QueryParam("ip")
	if !utils.IsPlausibleIP(ip) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or missing ip parameter")
	}

	names, err := h.RDNS.Lookup(ip)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ip": ip, "ptr": names})
}

func (h *Handler) WhoisLookup(c echo.Context) error {
	ip := c.QueryParam("ip")
	if !utils.IsPlausibleIP(ip) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or missing ip parameter")
	}

	info, err := service.WhoisIP(ip)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ip": ip, "whois": info})
}

func (h *Handler) GeoLookup(c echo.Context) error {
	ip := c.QueryParam("ip")
	if !utils.IsPlausibleIP(ip) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or missing ip parameter")
	}
	if !h.Geo.Available() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "geoip database not loaded")
	}

	info, err := h.Geo.Lookup(ip)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

// engineError maps engine-contract failures to HTTP errors. Anything
// item-level never reaches here.
func (h *Handler) engineError(err error) error {
	if errors.Is(err, service.ErrEngineClosed) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
