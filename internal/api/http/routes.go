package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/query"
	"github.com/i474232898/forecast-cache/internal/weather"
)

var validate = validator.New()

// keepAliveInterval is how often an idle event stream sends a comment line.
const keepAliveInterval = 15 * time.Second

// SyncController is the part of the sync engine exposed over HTTP.
type SyncController interface {
	Trigger(ctx context.Context) bool
	Status() weather.SyncStatus
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, router *query.Router, syncer SyncController) {
	h := &handler{router: router, syncer: syncer, now: time.Now}

	v1 := app.Group("/api/v1")
	v1.Get("/weather", h.listWeather)
	v1.Get("/weather/:date", h.getDay)
	v1.Get("/watch/weather", h.watchWeather)
	v1.Get("/watch/weather/:date", h.watchDay)
	v1.Get("/sync/status", h.syncStatus)
	v1.Post("/sync", h.triggerSync)
}

type handler struct {
	router *query.Router
	syncer SyncController
	now    func() time.Time
}

// collectionQuery holds query parameters for the collection endpoints.
type collectionQuery struct {
	From   string `validate:"omitempty,eq=today|number|datetime=2006-01-02"`
	Events int    `validate:"gte=0"`
}

// recordDTO is the wire form of a forecast row.
type recordDTO struct {
	Date          int64             `json:"date"`
	Day           string            `json:"day"`
	ConditionID   int               `json:"conditionId"`
	Condition     weather.Condition `json:"condition"`
	MinTemp       float64           `json:"minTemp"`
	MaxTemp       float64           `json:"maxTemp"`
	Humidity      float64           `json:"humidity"`
	Pressure      float64           `json:"pressure"`
	WindSpeed     float64           `json:"windSpeed"`
	WindDirection float64           `json:"windDirection"`
}

func toDTOs(rs weather.ResultSet) []recordDTO {
	out := make([]recordDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, recordDTO{
			Date:          r.Date,
			Day:           weather.FormatDate(r.Date),
			ConditionID:   r.ConditionID,
			Condition:     weather.ConditionForID(r.ConditionID),
			MinTemp:       r.MinTemp,
			MaxTemp:       r.MaxTemp,
			Humidity:      r.Humidity,
			Pressure:      r.Pressure,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
		})
	}
	return out
}

func (h *handler) listWeather(c *fiber.Ctx) error {
	loc, _, err := h.collectionLocator(c)
	if err != nil {
		return err
	}

	rs, err := h.router.Query(c.UserContext(), loc)
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{
		"locator": loc.String(),
		"count":   len(rs),
		"records": toDTOs(rs),
	})
}

func (h *handler) getDay(c *fiber.Ctx) error {
	loc, err := itemLocator(c)
	if err != nil {
		return err
	}

	rs, err := h.router.Query(c.UserContext(), loc)
	if err != nil {
		return queryError(err)
	}
	if len(rs) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no forecast for requested date")
	}
	return c.JSON(toDTOs(rs)[0])
}

func (h *handler) watchWeather(c *fiber.Ctx) error {
	loc, events, err := h.collectionLocator(c)
	if err != nil {
		return err
	}
	return h.stream(c, loc, events)
}

func (h *handler) watchDay(c *fiber.Ctx) error {
	loc, err := itemLocator(c)
	if err != nil {
		return err
	}
	events, err := eventsParam(c)
	if err != nil {
		return err
	}
	return h.stream(c, loc, events)
}

func (h *handler) syncStatus(c *fiber.Ctx) error {
	return c.JSON(h.syncer.Status())
}

func (h *handler) triggerSync(c *fiber.Ctx) error {
	// The request context is recycled once the handler returns.
	if !h.syncer.Trigger(context.Background()) {
		return fiber.NewError(fiber.StatusConflict, weather.ErrSyncInProgress.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// collectionLocator builds the collection locator from ?from= (today, a
// YYYY-MM-DD date or epoch millis) and reads the optional ?events= limit.
func (h *handler) collectionLocator(c *fiber.Ctx) (weather.Collection, int, error) {
	q := collectionQuery{From: strings.TrimSpace(c.Query("from"))}
	events, err := eventsParam(c)
	if err != nil {
		return weather.Collection{}, 0, err
	}
	q.Events = events

	if err := validate.Struct(q); err != nil {
		return weather.Collection{}, 0, fiber.NewError(fiber.StatusBadRequest, "invalid from parameter; use today, YYYY-MM-DD or epoch millis")
	}

	switch q.From {
	case "":
		return weather.Collection{}, events, nil
	case "today":
		return weather.CollectionSince(weather.DateOf(h.now())), events, nil
	default:
		from, err := weather.ParseDate(q.From)
		if err != nil {
			return weather.Collection{}, 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return weather.CollectionSince(from), events, nil
	}
}

func itemLocator(c *fiber.Ctx) (weather.Item, error) {
	raw := c.Params("date")
	if err := validate.Var(raw, "required"); err != nil {
		return weather.Item{}, fiber.NewError(fiber.StatusBadRequest, "date is required")
	}

	loc, err := weather.ParseLocator(weather.PathWeather + "/" + raw)
	if err != nil {
		return weather.Item{}, queryError(err)
	}
	item, ok := loc.(weather.Item)
	if !ok {
		return weather.Item{}, fiber.NewError(fiber.StatusBadRequest, "date is required")
	}
	if !weather.IsNormalized(item.Date) {
		return weather.Item{}, fiber.NewError(fiber.StatusBadRequest, "date must be a UTC midnight in epoch millis")
	}
	return item, nil
}

func eventsParam(c *fiber.Ctx) (int, error) {
	raw := c.Query("events")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "events must be a non-negative integer")
	}
	return n, nil
}

// stream serves a live query as Server-Sent Events. The current result set is
// sent first, then one event per change. A positive limit closes the stream
// after that many events.
func (h *handler) stream(c *fiber.Ctx, loc weather.Locator, limit int) error {
	initial, err := h.router.Query(c.UserContext(), loc)
	if err != nil {
		return queryError(err)
	}

	// Only the latest result set matters, so a slow client drops stale ones.
	updates := make(chan weather.ResultSet, 1)
	sub, err := h.router.Subscribe(loc, func(rs weather.ResultSet) {
		for {
			select {
			case updates <- rs:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		return queryError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Cancel()

		sent := 0
		if err := writeEvent(w, loc, initial); err != nil {
			return
		}
		sent++

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for limit == 0 || sent < limit {
			select {
			case rs := <-updates:
				if err := writeEvent(w, loc, rs); err != nil {
					return
				}
				sent++
			case <-ticker.C:
				// a failed flush means the client went away
				fmt.Fprint(w, ": keep-alive\n\n")
				if err := w.Flush(); err != nil {
					logger.Debugf("http: watcher of %s disconnected", loc)
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, loc weather.Locator, rs weather.ResultSet) error {
	data, err := json.Marshal(fiber.Map{
		"locator": loc.String(),
		"records": toDTOs(rs),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: forecast\ndata: %s\n\n", data)
	return w.Flush()
}

// queryError maps domain errors onto HTTP status codes.
func queryError(err error) error {
	switch {
	case weather.IsRouting(err), weather.IsValidation(err):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case weather.IsStorage(err):
		logger.Errorf("http: storage failure: %v", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "forecast storage unavailable")
	default:
		logger.Errorf("http: query failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to query forecast")
	}
}
