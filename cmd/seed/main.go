package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/config"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/db"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/fieldcipher"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
)

var reasons = []string{
	"General checkup",
	"Follow-up visit",
	"Skin rash",
	"Chest pain",
	"Back pain",
	"Vaccination",
	"Prescription refill",
	"Lab results review",
}

func main() {
	count := flag.Int("count", 500, "number of appointments to insert")
	doctors := flag.Int("doctors", 20, "number of distinct doctors")
	days := flag.Int("days", 30, "spread appointments over this many days from tomorrow")
	flag.Parse()

	logger := logging.New("info")
	logger.Info("seed starting", "count", *count)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "config load error", err)
	}
	cipher, err := fieldcipher.New(cfg.EncryptionKey)
	if err != nil {
		fatal(logger, "invalid ENCRYPTION_KEY", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		fatal(logger, "migrate", err)
	}
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal(logger, "connect postgres", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, logging.Discard())
	created, skipped, err := seedAppointments(context.Background(), svc, cipher, doctorNames(*doctors), *count, *days)
	if err != nil {
		fatal(logger, "seed appointments", err)
	}

	logger.Info("seed complete", "created", created, "skipped_duplicates", skipped)
}

func doctorNames(n int) []string {
	if n <= 0 {
		n = 1
	}
	names := make([]string, n)
	for i := range names {
		names[i] = "Dr. " + gofakeit.LastName()
	}
	return names
}

// seedAppointments books fake visits on quarter-hour slots during clinic
// hours. Collisions are expected and skipped.
func seedAppointments(ctx context.Context, svc *appointment.Service, cipher *fieldcipher.Cipher, doctors []string, count, days int) (created, skipped int, err error) {
	if days <= 0 {
		days = 1
	}
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	sources := []appointment.Source{appointment.SourceCall, appointment.SourceChat, appointment.SourceUnknown}

	for i := 0; i < count; i++ {
		at := start.
			AddDate(0, 0, gofakeit.Number(0, days-1)).
			Add(time.Duration(gofakeit.Number(9, 16)) * time.Hour).
			Add(time.Duration(gofakeit.Number(0, 3)*15) * time.Minute)

		phone := gofakeit.Phone()
		reason := reasons[gofakeit.Number(0, len(reasons)-1)]
		appt := appointment.Appointment{
			PatientName:     gofakeit.Name(),
			PatientEmail:    gofakeit.Email(),
			PatientPhone:    &phone,
			DoctorName:      doctors[gofakeit.Number(0, len(doctors)-1)],
			AppointmentTime: at,
			Reason:          &reason,
			Source:          sources[gofakeit.Number(0, len(sources)-1)],
		}
		if appt.Source == appointment.SourceCall {
			callID := gofakeit.UUID()
			seconds := float64(gofakeit.Number(30, 900))
			minutes := appointment.DurationMinutes(seconds)
			appt.CallID = &callID
			appt.CallDurationSeconds = &seconds
			appt.CallDurationMinutes = &minutes
		}
		if err := appt.SealContact(cipher); err != nil {
			return created, skipped, err
		}

		if _, err := svc.Create(ctx, appt); err != nil {
			if errors.Is(err, appointment.ErrDuplicateAppointment) {
				skipped++
				continue
			}
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}
