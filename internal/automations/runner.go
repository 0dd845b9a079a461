package automations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"housing-backend/internal/funding"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/transactions"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrAlreadyRunning  = errors.New("automation is already running")
	ErrMissingContract = errors.New("recurring transaction automations need a contract_id")
)

// run messages are stored in a varchar(1000) column
const maxRunMessage = 1000

// Runner checks automations on a cron tick and executes the due ones.
type Runner struct {
	db      *gorm.DB
	log     *zap.Logger
	spec    string
	workers int
	now     func() time.Time

	mu      sync.Mutex
	running map[uint]bool
}

func NewRunner(db *gorm.DB, log *zap.Logger, spec string, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		db:      db,
		log:     log,
		spec:    spec,
		workers: workers,
		now:     time.Now,
		running: make(map[uint]bool),
	}
}

// Run ticks on the runner's cron spec until ctx is cancelled, then waits for
// in-flight runs to finish.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() {
		if err := r.Tick(ctx); err != nil {
			r.log.Error("automation tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler spec %q: %w", r.spec, err)
	}

	c.Start()
	r.log.Info("automation scheduler started", zap.String("spec", r.spec), zap.Int("workers", r.workers))

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("automation scheduler stopped")
	return nil
}

// Tick expires ended contracts and runs every due automation, at most
// workers at a time. A failing automation is recorded and does not stop the
// others.
func (r *Runner) Tick(ctx context.Context) error {
	now := r.now()

	if n, err := funding.ExpireEnded(r.db, now); err != nil {
		r.log.Error("expire contracts failed", zap.Error(err))
	} else if n > 0 {
		r.log.Info("contracts expired", zap.Int64("count", n))
	}

	var list []models.Automation
	if err := r.db.Where("is_enabled = ?", true).Order("id").Find(&list).Error; err != nil {
		return fmt.Errorf("load automations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range list {
		a := &list[i]
		due, err := IsDue(a, now)
		if err != nil {
			r.log.Warn("automation has an invalid schedule",
				zap.Uint("automation_id", a.ID), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, err := r.Execute(a); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				r.log.Error("automation run failed",
					zap.Uint("automation_id", a.ID), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) claim(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[id] {
		return false
	}
	r.running[id] = true
	return true
}

func (r *Runner) release(id uint) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Execute runs a once, stores the AutomationRun and moves its last/next run
// times forward. The returned error is only set when the run could not be
// recorded; action failures are reported through the run status.
func (r *Runner) Execute(a *models.Automation) (*models.AutomationRun, error) {
	if !r.claim(a.ID) {
		return nil, ErrAlreadyRunning
	}
	defer r.release(a.ID)

	started := r.now()
	created, msg, actionErr := r.perform(a, started)

	run := models.AutomationRun{
		AutomationID: a.ID,
		StartedAt:    started,
		FinishedAt:   r.now(),
		CreatedCount: created,
		Message:      msg,
	}
	switch {
	case actionErr != nil:
		run.Status = models.AutomationRunFailed
		run.Message = actionErr.Error()
	case created == 0:
		run.Status = models.AutomationRunSkipped
	default:
		run.Status = models.AutomationRunSuccess
	}
	run.Message = truncate(run.Message, maxRunMessage)

	metrics.RecordAutomationRun(string(a.Type), string(run.Status), run.FinishedAt.Sub(started))
	r.log.Info("automation run",
		zap.Uint("automation_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("status", string(run.Status)),
		zap.Int("created", created),
	)

	if err := r.db.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	updates := map[string]any{"last_run_at": started}
	a.LastRunAt = &started
	if next, err := NextRun(a, started); err == nil {
		updates["next_run_at"] = next
		a.NextRunAt = &next
	}
	if err := r.db.Model(&models.Automation{ID: a.ID}).Updates(updates).Error; err != nil {
		return &run, fmt.Errorf("update automation: %w", err)
	}
	return &run, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *Runner) perform(a *models.Automation, now time.Time) (int, string, error) {
	switch a.Type {
	case models.AutomationRecurringTransaction:
		return r.recurringTransaction(a, now)
	case models.AutomationContractBilling:
		return r.contractBilling(a, now)
	default:
		return 0, "", fmt.Errorf("unknown automation type %q", a.Type)
	}
}

// serviceDate is today in the automation's timezone.
func serviceDate(a *models.Automation, now time.Time) time.Time {
	if loc, err := time.LoadLocation(a.Timezone); err == nil && a.Timezone != "" {
		now = now.In(loc)
	}
	return funding.DateOnly(now)
}

func (r *Runner) recurringTransaction(a *models.Automation, now time.Time) (int, string, error) {
	if a.ContractID == nil {
		return 0, "", ErrMissingContract
	}
	var fc models.FundingContract
	if err := r.db.First(&fc, *a.ContractID).Error; err != nil {
		return 0, "", fmt.Errorf("load contract %d: %w", *a.ContractID, err)
	}
	if fc.Status != models.ContractStatusActive {
		return 0, fmt.Sprintf("contract %s is %s", fc.ContractNumber, fc.Status), nil
	}

	t, err := transactions.Create(r.db, &fc, transactions.Input{
		ServiceDate:       serviceDate(a, now),
		Quantity:          a.Quantity,
		UnitPrice:         a.UnitPrice,
		SupportItemNumber: a.SupportItemNumber,
		Description:       a.Description,
		AutomationID:      &a.ID,
	})
	if err != nil {
		return 0, "", err
	}
	if !a.AutoPost {
		return 1, fmt.Sprintf("draft transaction %d created", t.ID), nil
	}
	if _, _, err := transactions.Post(r.db, t.ID); err != nil {
		return 1, "", fmt.Errorf("transaction %d created but not posted: %w", t.ID, err)
	}
	return 1, fmt.Sprintf("transaction %d posted (%.2f)", t.ID, t.Amount), nil
}

// contractBilling posts one period amount for every active auto drawdown
// contract that is in period and can cover it.
func (r *Runner) contractBilling(a *models.Automation, now time.Time) (int, string, error) {
	today := serviceDate(a, now)

	var contracts []models.FundingContract
	if err := r.db.
		Where("status = ? AND auto_drawdown = ? AND start_date <= ? AND end_date >= ?",
			models.ContractStatusActive, true, today, today).
		Order("id").
		Find(&contracts).Error; err != nil {
		return 0, "", fmt.Errorf("load contracts: %w", err)
	}

	var (
		created int
		skipped []string
		failed  []string
	)
	for i := range contracts {
		fc := &contracts[i]
		amount := funding.PeriodAmount(fc)
		if amount <= 0 || fc.CurrentBalance < amount {
			skipped = append(skipped, fc.ContractNumber)
			continue
		}
		// the draft only survives if it posts
		err := r.db.Transaction(func(tx *gorm.DB) error {
			t, err := transactions.Create(tx, fc, transactions.Input{
				ServiceDate:  today,
				Quantity:     1,
				UnitPrice:    amount,
				Description:  fmt.Sprintf("%s drawdown %s", fc.DrawdownRate, today.Format("2006-01-02")),
				AutomationID: &a.ID,
			})
			if err != nil {
				return err
			}
			_, _, err = transactions.PostTx(tx, t.ID)
			return err
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", fc.ContractNumber, err))
			continue
		}
		created++
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d of %d contracts billed", created, len(contracts)))
	if len(skipped) > 0 {
		parts = append(parts, "insufficient balance: "+strings.Join(skipped, ", "))
	}
	if len(failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(failed, "; "))
	}
	msg := strings.Join(parts, "; ")
	if created == 0 && len(failed) > 0 {
		return 0, "", errors.New(msg)
	}
	return created, msg, nil
}
