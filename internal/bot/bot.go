package bot

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netchat/internal/stats"
	"netchat/pkg/interfaces"
	"netchat/pkg/types"
)

// Bot sits on the analytics consumption path. User messages feed the
// aggregator, commands go through the dispatcher and the reply re-enters the
// pipeline as a statistics message. The bot also publishes a periodic report.
type Bot struct {
	name           string
	stats          *stats.Aggregator
	dispatcher     interfaces.CommandHandler
	submitter      interfaces.Submitter
	reportInterval time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// New creates the bot. name is the sender identity on generated messages.
// A non-positive reportInterval disables the periodic report.
func New(name string, aggregator *stats.Aggregator, dispatcher interfaces.CommandHandler, submitter interfaces.Submitter, reportInterval time.Duration, log zerolog.Logger) *Bot {
	return &Bot{
		name:           name,
		stats:          aggregator,
		dispatcher:     dispatcher,
		submitter:      submitter,
		reportInterval: reportInterval,
		done:           make(chan struct{}),
		log:            log.With().Str("component", "bot").Logger(),
	}
}

// Consume handles one message from the analytics queue. Only user messages
// and commands are expected here; the broker never routes other kinds to the
// analytics branch.
func (b *Bot) Consume(msg types.Message) {
	switch msg.Kind {
	case types.KindUser:
		b.stats.RecordUserMessage(msg.Sender, msg.Text)

	case types.KindCommand:
		b.log.Debug().Str("sender", msg.Sender).Str("command", msg.Text).Msg("handling command")
		reply := b.dispatcher.Dispatch(msg.Sender, msg.Text)
		if err := b.submitter.Submit(types.NewMessage(types.KindStatistics, b.name, reply)); err != nil {
			b.log.Warn().Err(err).Str("sender", msg.Sender).Msg("dropping command reply")
		}

	default:
		b.log.Warn().Str("kind", string(msg.Kind)).Msg("unexpected message kind on analytics path")
	}
}

// Start launches the periodic report publisher.
func (b *Bot) Start() {
	if b.reportInterval <= 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.publishReport()
			case <-b.done:
				return
			}
		}
	}()
}

// Stop terminates the report publisher. Safe to call more than once.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Bot) publishReport() {
	if b.stats.TotalMessages() == 0 {
		// Nothing to report on an idle chat.
		return
	}
	report := types.NewMessage(types.KindStatistics, b.name, "📊 Periodic report:\n"+b.stats.GenerateReport())
	if err := b.submitter.Submit(report); err != nil {
		b.log.Warn().Err(err).Msg("dropping periodic report")
	}
}
