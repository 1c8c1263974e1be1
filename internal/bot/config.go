package bot

// Config defines fields parsed from environment variables.
// BOT_TOKEN and OWNER_ID are the only required settings in the whole process:
// missing either aborts startup.
type Config struct {
	Token                   string `env:"BOT_TOKEN,required"`
	OwnerID                 int64  `env:"OWNER_ID,required"`
	ReminderIntervalMinutes int    `env:"REMINDER_INTERVAL_MINUTES" envDefault:"120"`
}
