package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/client"
	"github.com/hackgods/telecare/internal/config"
	"github.com/hackgods/telecare/internal/db"
	"github.com/hackgods/telecare/internal/logging"
	"github.com/hackgods/telecare/internal/session"
	"github.com/hackgods/telecare/internal/signaling"
)

type SimConfig struct {
	APIBaseURL   string
	BookEvery    int
	SignalingURL string
	Duration     time.Duration
	Workers      int
	RoomLimit    int
	StepTimeout  time.Duration
	PostgresDSN  string
	JWTSecret    string
	TokenTTL     time.Duration
}

// room is a confirmed tele appointment and its two participants.
type room struct {
	ID      uuid.UUID
	Doctor  uuid.UUID
	Patient uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Refused   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, refused bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if refused {
		atomic.AddInt64(&om.Refused, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Book      OperationMetrics
	Connect   OperationMetrics
	Join      OperationMetrics
	Negotiate OperationMetrics
	Candidate OperationMetrics
}

type Simulator struct {
	config  SimConfig
	rooms   []room
	issuer  *auth.Issuer
	logger  zerolog.Logger
	metrics Metrics
}

var errRefused = errors.New("relay refused")

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("dev", "simulate")
	logger.Info().
		Str("signaling_url", cfg.SignalingURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	rooms, err := loadRooms(ctx, pgPool, cfg.RoomLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load rooms")
	}
	logger.Info().Int("rooms", len(rooms)).Msg("loaded confirmed consultations")

	sim := &Simulator{
		config: cfg,
		rooms:  rooms,
		issuer: auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	base, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		BookEvery:    getInt("SIM_BOOK_EVERY", 4),
		SignalingURL: getEnv("SIM_SIGNALING_URL", base.SignalingURL),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		RoomLimit:    getInt("SIM_ROOM_LIMIT", 500),
		StepTimeout:  getDuration("SIM_STEP_TIMEOUT", 5*time.Second),
		PostgresDSN:  base.PostgresDSN,
		JWTSecret:    base.JWTSecret,
		TokenTTL:     base.TokenTTL,
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

func loadRooms(ctx context.Context, pool *pgxpool.Pool, limit int) ([]room, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, doctor_id, patient_id FROM appointments
		WHERE status = 'confirmed' AND consultation_mode = 'tele'
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()

	var out []room
	for rows.Next() {
		var r room
		if err := rows.Scan(&r.ID, &r.Doctor, &r.Patient); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no confirmed tele appointments, run seed first")
	}
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for i := 0; ctx.Err() == nil; i++ {
		r := s.rooms[rng.Intn(len(s.rooms))]
		if s.config.BookEvery > 0 && i%s.config.BookEvery == 0 {
			if err := s.book(ctx, r, rng); err != nil && ctx.Err() == nil {
				s.logger.Debug().Err(err).Str("doctor", r.Doctor.String()).Msg("booking failed")
			}
		}
		if err := s.runPair(ctx, r); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Str("room", r.ID.String()).Msg("pair run failed")
		}
	}
}

// book has the room's patient request a random slot with the same doctor. A
// slot that is already held counts as refused.
func (s *Simulator) book(ctx context.Context, r room, rng *rand.Rand) error {
	tok, err := s.issuer.Issue(r.Patient, auth.RolePatient)
	if err != nil {
		return err
	}
	api := client.New(s.config.APIBaseURL, session.New(tok, "", nil), client.WithLogger(s.logger))

	day := time.Now().AddDate(0, 0, 1+rng.Intn(30))
	startMin := 9*60 + 30*rng.Intn(16)
	req := appointment.BookRequest{
		DoctorID:        r.Doctor,
		AppointmentDate: day.Format(time.DateOnly),
		TimeSlot: appointment.TimeSlot{
			StartTime: fmt.Sprintf("%02d:%02d", startMin/60, startMin%60),
			EndTime:   fmt.Sprintf("%02d:%02d", (startMin+30)/60, (startMin+30)%60),
		},
		ConsultationMode: appointment.ModeTele,
		ReasonForVisit:   "Simulated follow-up",
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	start := time.Now()
	res := api.BookAppointment(reqCtx, req)
	refused := res.Error == appointment.ErrSlotTaken.Error() || res.Error == appointment.ErrSlotBeingBooked.Error()
	s.metrics.Book.Record(time.Since(start), res.IsOk(), refused)
	if !res.IsOk() && !refused {
		return res.Err()
	}
	return nil
}

// runPair plays one consultation: both sides connect, join, negotiate and
// trade a candidate, then leave.
func (s *Simulator) runPair(ctx context.Context, r room) error {
	roomID := r.ID.String()

	doctor, err := s.connect(ctx, r.Doctor, auth.RoleDoctor)
	if err != nil {
		return err
	}
	defer doctor.Close()

	patient, err := s.connect(ctx, r.Patient, auth.RolePatient)
	if err != nil {
		return err
	}
	defer patient.Close()

	start := time.Now()
	err = doctor.Join(roomID, string(auth.RoleDoctor))
	if err == nil {
		_, err = s.await(ctx, doctor, signaling.TypeRoomJoined)
	}
	if err == nil {
		err = patient.Join(roomID, string(auth.RolePatient))
	}
	if err == nil {
		_, err = s.await(ctx, patient, signaling.TypeRoomJoined)
	}
	if err == nil {
		_, err = s.await(ctx, doctor, signaling.TypeUserJoined)
	}
	s.metrics.Join.Record(time.Since(start), err == nil, errors.Is(err, errRefused))
	if err != nil {
		return err
	}

	start = time.Now()
	err = doctor.SendPayload(signaling.TypeOffer, roomID, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fakeSDP(r.Doctor)})
	if err == nil {
		err = s.relayed(ctx, patient, signaling.TypeOffer, webrtc.SDPTypeOffer)
	}
	if err == nil {
		err = patient.SendPayload(signaling.TypeAnswer, roomID, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fakeSDP(r.Patient)})
	}
	if err == nil {
		err = s.relayed(ctx, doctor, signaling.TypeAnswer, webrtc.SDPTypeAnswer)
	}
	s.metrics.Negotiate.Record(time.Since(start), err == nil, errors.Is(err, errRefused))
	if err != nil {
		return err
	}

	start = time.Now()
	mid, idx := "0", uint16(0)
	err = doctor.SendPayload(signaling.TypeICECandidate, roomID, webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 54400 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
	if err == nil {
		var msg signaling.Message
		msg, err = s.await(ctx, patient, signaling.TypeICECandidate)
		if err == nil {
			var c webrtc.ICECandidateInit
			err = msg.Decode(&c)
		}
	}
	s.metrics.Candidate.Record(time.Since(start), err == nil, errors.Is(err, errRefused))

	_ = doctor.Leave(roomID)
	_ = patient.Leave(roomID)
	return err
}

func (s *Simulator) connect(ctx context.Context, user uuid.UUID, role auth.Role) (*signaling.Client, error) {
	tok, err := s.issuer.Issue(user, role)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()
	c, err := signaling.Dial(dialCtx, s.config.SignalingURL, tok)
	s.metrics.Connect.Record(time.Since(start), err == nil, false)
	return c, err
}

// await reads until a message of type want arrives. A relay error frame fails the step.
func (s *Simulator) await(ctx context.Context, c *signaling.Client, want signaling.Type) (signaling.Message, error) {
	timer := time.NewTimer(s.config.StepTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return signaling.Message{}, ctx.Err()
		case <-timer.C:
			return signaling.Message{}, fmt.Errorf("timed out waiting for %s", want)
		case msg, ok := <-c.Messages():
			if !ok {
				return signaling.Message{}, fmt.Errorf("connection closed waiting for %s: %v", want, c.Err())
			}
			if msg.Type == want {
				return msg, nil
			}
			if msg.Type == signaling.TypeError {
				var p signaling.ErrorPayload
				_ = msg.Decode(&p)
				return signaling.Message{}, fmt.Errorf("%w: %s", errRefused, p.Message)
			}
		}
	}
}

func (s *Simulator) relayed(ctx context.Context, c *signaling.Client, t signaling.Type, sdpType webrtc.SDPType) error {
	msg, err := s.await(ctx, c, t)
	if err != nil {
		return err
	}
	var desc webrtc.SessionDescription
	if err := msg.Decode(&desc); err != nil {
		return err
	}
	if desc.Type != sdpType {
		return fmt.Errorf("relayed %s carried %s", t, desc.Type)
	}
	return nil
}

func fakeSDP(user uuid.UUID) string {
	return "v=0\r\no=- " + strconv.FormatUint(uint64(user.ID()), 10) + " 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIGNALING SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Rooms: %d\n", len(s.rooms))
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Connect", &s.metrics.Connect)
	printOperationReport("Join both", &s.metrics.Join)
	printOperationReport("Offer/answer", &s.metrics.Negotiate)
	printOperationReport("ICE candidate", &s.metrics.Candidate)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	refused := atomic.LoadInt64(&om.Refused)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if refused > 0 {
		fmt.Printf("  Refused: %d (%.1f%%)\n", refused, float64(refused)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
