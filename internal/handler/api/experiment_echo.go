package api

import (
	"errors"
	"time"

	"EffortLab/internal/domain/models"
	domrepo "EffortLab/internal/domain/repository"
	"EffortLab/internal/services/calibration"
	"EffortLab/internal/services/effort"
	"EffortLab/internal/services/schedule"
	"EffortLab/internal/services/staircase"
	"EffortLab/internal/usecase"
	xhttp "EffortLab/pkg/http"
	"EffortLab/pkg/http/middleware"
	xlogger "EffortLab/pkg/logger"
	"EffortLab/pkg/util"

	"github.com/labstack/echo/v4"
)

// TriggerFactory returns the marker trigger for one session.
type TriggerFactory func(sessionID string) domrepo.EventTrigger

// ExperimentHandler serves the presentation layer: sessions, trials,
// staircase proposals, schedules and calibration.
type ExperimentHandler struct {
	logger    *xlogger.Logger
	sessions  *usecase.SessionService
	calib     *usecase.CalibrationService
	schedules *usecase.ScheduleService
	trials    usecase.TrialQuerier
	summary   *usecase.TrialSummaryUseCase
	staircase staircase.Config

	device   domrepo.SignalSource
	triggers TriggerFactory
	poll     time.Duration
	limiter  *middleware.Limiter
}

type HandlerOption func(*ExperimentHandler)

// WithLiveDevice enables POST /api/sessions/:id/trials/run against src.
func WithLiveDevice(src domrepo.SignalSource, triggers TriggerFactory, poll time.Duration) HandlerOption {
	return func(h *ExperimentHandler) {
		h.device = src
		h.triggers = triggers
		h.poll = poll
	}
}

// WithRateLimit limits the trial routes per client.
func WithRateLimit(l *middleware.Limiter) HandlerOption {
	return func(h *ExperimentHandler) { h.limiter = l }
}

func NewExperimentHandler(
	logger *xlogger.Logger,
	sessions *usecase.SessionService,
	calib *usecase.CalibrationService,
	schedules *usecase.ScheduleService,
	trials usecase.TrialQuerier,
	stair staircase.Config,
	opts ...HandlerOption,
) *ExperimentHandler {
	h := &ExperimentHandler{
		logger:    logger,
		sessions:  sessions,
		calib:     calib,
		schedules: schedules,
		trials:    trials,
		summary:   usecase.NewTrialSummaryUseCase(trials),
		staircase: stair,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ExperimentHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetSession)

	trials := g.Group("/sessions/:id/trials")
	if h.limiter != nil {
		trials.Use(middleware.RateLimit(h.limiter, h.logger))
	}
	trials.POST("", h.JudgeTrial)
	trials.POST("/run", h.RunTrial)

	g.POST("/staircase/propose", h.Propose)
	g.POST("/schedule/generate", h.GenerateSchedule)
	g.GET("/stimuli", h.Stimuli)
	g.POST("/calibration/extract", h.Extract)
	g.POST("/calibration", h.Calibrate)
	g.GET("/calibration/:participant", h.GetCalibration)
	g.GET("/trials", h.ListTrials)
	g.GET("/trials/summary", h.TrialSummary)
}

func (h *ExperimentHandler) CreateSession(c echo.Context) error {
	req := &models.CreateSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.sessions.Create(c.Request().Context(), usecase.CreateSessionInput{
		Participant:  req.Participant,
		Mode:         models.Mode(req.Mode),
		MaxStrength:  req.MaxStrength,
		ZeroBaseline: req.ZeroBaseline,
	})
	if err != nil {
		return h.fail(c, "create session", err)
	}
	return xhttp.CreatedResponse(c, s)
}

func (h *ExperimentHandler) GetSession(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.sessions.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get session", err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *ExperimentHandler) JudgeTrial(c echo.Context) error {
	req := &models.JudgeTrialRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in := trialInput(req.Offer, req.Response, req.ResponseTimeMs, req.BlockNumber)
	trace := make(models.EffortTrace, len(req.Samples))
	for i, s := range req.Samples {
		trace[i] = models.Sample{Value: s.V, Elapsed: util.FromMillis(s.T)}
	}
	res, err := h.sessions.Judge(c.Request().Context(), req.ID, in, trace, req.Raw)
	if err != nil {
		return h.fail(c, "judge trial", err)
	}
	return xhttp.SuccessResponse(c, newTrialResponse(res))
}

func (h *ExperimentHandler) RunTrial(c echo.Context) error {
	if h.device == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("ERR_NO_DEVICE", "no live device configured"))
	}
	req := &models.RunTrialRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in := trialInput(req.Offer, req.Response, req.ResponseTimeMs, req.BlockNumber)
	var trigger domrepo.EventTrigger
	if h.triggers != nil {
		trigger = h.triggers(req.ID)
	}
	res, err := h.sessions.Run(c.Request().Context(), req.ID, in, h.device, trigger, effort.Pace(h.poll))
	if err != nil {
		return h.fail(c, "run trial", err)
	}
	return xhttp.SuccessResponse(c, newTrialResponse(res))
}

// ProposeResponse is a stateless staircase offer.
type ProposeResponse struct {
	Reward int `json:"reward"`
	Effort int `json:"effort"`
}

func (h *ExperimentHandler) Propose(c echo.Context) error {
	req := &models.ProposeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rng := util.Stream(util.SeedOrNow(req.Seed))
	reward, eff := h.staircase.ProposeNext(rng, req.K, req.PreviousReward)
	return xhttp.SuccessResponse(c, ProposeResponse{Reward: reward, Effort: eff})
}

// ScheduleResponse carries the seed so a schedule can be regenerated.
type ScheduleResponse struct {
	Seed   int64                   `json:"seed"`
	Trials []models.ScheduledTrial `json:"trials"`
}

func (h *ExperimentHandler) GenerateSchedule(c echo.Context) error {
	req := &models.GenerateScheduleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f, err := h.factors(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	trials, seed, err := h.schedules.Generate(&f, req.Seed)
	if err != nil {
		return h.fail(c, "generate schedule", err)
	}
	return xhttp.SuccessResponse(c, ScheduleResponse{Seed: seed, Trials: trials})
}

// factors overlays the fields set in req on the configured factors.
func (h *ExperimentHandler) factors(req *models.GenerateScheduleRequest) (schedule.Factors, error) {
	f := h.schedules.Defaults()
	if req.Repeats > 0 {
		f.Repeats = req.Repeats
	}
	if req.TrialsPerBlock > 0 {
		f.TrialsPerBlock = req.TrialsPerBlock
	}
	if req.Delta > 0 {
		f.Delta = req.Delta
	}
	if len(req.EffortLevels) > 0 {
		f.EffortLevels = req.EffortLevels
	}
	if len(req.MagnitudeLevels) > 0 {
		f.MagnitudeLevels = req.MagnitudeLevels
	}
	if len(req.UncertaintyLevels) > 0 {
		f.UncertaintyLevels = make([]models.UncertaintyClass, 0, len(req.UncertaintyLevels))
		for _, s := range req.UncertaintyLevels {
			u, err := models.ParseUncertaintyClass(s)
			if err != nil {
				return f, err
			}
			f.UncertaintyLevels = append(f.UncertaintyLevels, u)
		}
	}
	if len(req.BlockTypes) > 0 {
		f.BlockTypes = make([]models.ActionType, 0, len(req.BlockTypes))
		for _, s := range req.BlockTypes {
			a, err := models.ParseActionType(s)
			if err != nil {
				return f, err
			}
			f.BlockTypes = append(f.BlockTypes, a)
		}
	}
	return f, nil
}

func (h *ExperimentHandler) Stimuli(c echo.Context) error {
	req := &models.StimuliRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	class, err := models.ParseUncertaintyClass(req.Uncertainty)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	bars, err := h.schedules.Stimuli(req.Mean, class, req.Seed)
	if err != nil {
		return h.fail(c, "stimuli", err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"mean": req.Mean, "uncertainty": class, "bars": bars})
}

func (h *ExperimentHandler) Extract(c echo.Context) error {
	req := &models.ExtractRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	peak, err := h.calib.Extract(req.Efforts)
	if err != nil {
		return h.fail(c, "extract peak", err)
	}
	return xhttp.SuccessResponse(c, map[string]float64{"peak": peak})
}

func (h *ExperimentHandler) Calibrate(c echo.Context) error {
	req := &models.CalibrateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cal, err := h.calib.Calibrate(c.Request().Context(), req.Participant, req.ZeroBaseline, req.Traces)
	if err != nil {
		return h.fail(c, "calibrate", err)
	}
	return xhttp.CreatedResponse(c, cal)
}

func (h *ExperimentHandler) GetCalibration(c echo.Context) error {
	req := &models.ParticipantRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cal, err := h.calib.Lookup(c.Request().Context(), req.Participant)
	if err != nil {
		return h.fail(c, "lookup calibration", err)
	}
	return xhttp.SuccessResponse(c, cal)
}

func (h *ExperimentHandler) ListTrials(c echo.Context) error {
	req := &models.TrialsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := timeRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.trials.Query(c.Request().Context(), req.Participant, from, to, req.Limit)
	if err != nil {
		return h.fail(c, "query trials", err)
	}
	if rows == nil {
		rows = []*models.TrialRecord{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ExperimentHandler) TrialSummary(c echo.Context) error {
	req := &models.TrialsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Participant == "" {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUIRED", "participant", "participant is required", 400))
	}
	from, to, err := timeRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	s, err := h.summary.Summarize(c.Request().Context(), req.Participant, from, to)
	if err != nil {
		return h.fail(c, "summarize trials", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, s)
}

// fail maps usecase errors to API errors. Unknown errors are logged and
// reported as 500.
func (h *ExperimentHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return xhttp.AppErrorResponse(c, appErr)
	}
	switch {
	case errors.Is(err, domrepo.ErrSessionNotFound), errors.Is(err, domrepo.ErrCalibrationNotFound):
		appErr = xhttp.NotFoundError(err.Error())
	case errors.Is(err, domrepo.ErrSessionBusy):
		appErr = xhttp.ConflictError(err.Error())
	case errors.Is(err, usecase.ErrQueryUnavailable):
		appErr = xhttp.UnavailableError("ERR_UNAVAILABLE", err.Error())
	case errors.Is(err, usecase.ErrInvalidTrial),
		errors.Is(err, usecase.ErrNoCalibration),
		errors.Is(err, calibration.ErrEmptyTrace),
		errors.Is(err, calibration.ErrTooFewTrials),
		errors.Is(err, calibration.ErrNoStrength),
		errors.Is(err, schedule.ErrInvalidFactors),
		errors.Is(err, schedule.ErrUnknownUncertainty):
		appErr = xhttp.BadRequestError(err.Error())
	default:
		h.logger.Error(op+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Debug(op+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func timeRange(fromS, toS string) (time.Time, time.Time, error) {
	var from, to time.Time
	if fromS != "" {
		t, ok := util.ParseTime(fromS)
		if !ok {
			return from, to, xhttp.NewAppError("ERR_TIME", "from", "from must be RFC3339 or unix seconds", 400).WithParam("value", fromS)
		}
		from = t
	}
	if toS != "" {
		t, ok := util.ParseTime(toS)
		if !ok {
			return from, to, xhttp.NewAppError("ERR_TIME", "to", "to must be RFC3339 or unix seconds", 400).WithParam("value", toS)
		}
		to = t
	}
	return from, to, nil
}

func trialInput(o models.OfferRequest, response string, rtMs float64, block int) usecase.TrialInput {
	return usecase.TrialInput{
		Offer:        o.Offer(),
		Response:     models.Response(response),
		ResponseTime: util.FromMillis(rtMs),
		BlockNumber:  block,
	}
}
