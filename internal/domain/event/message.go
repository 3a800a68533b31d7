package event

// Message is one unit of work for the dispatch loop.
type Message interface {
	message()
}

// LogReceived carries a log pushed by a live subscription.
type LogReceived struct {
	SubscriptionID int
	Log            Log
}

// SubscriptionFailed reports that the subscription with ID stopped and must be rebuilt.
type SubscriptionFailed struct {
	SubscriptionID int
	Err            error
}

// TimerFired is delivered when a timer armed with Tag expires.
type TimerFired struct {
	Tag string
}

// CommandName selects an administrative operation.
type CommandName string

const (
	CommandState  CommandName = "state"
	CommandSchema CommandName = "schema"
	CommandReset  CommandName = "reset"
)

// CommandResult is the reply to an AdminCommand.
type CommandResult struct {
	Payload any
	Err     error
}

// AdminCommand asks the dispatch loop to run an administrative operation and
// reply on Reply. Reply must be buffered.
type AdminCommand struct {
	Name  CommandName
	Reply chan<- CommandResult
}

func (LogReceived) message()        {}
func (SubscriptionFailed) message() {}
func (TimerFired) message()         {}
func (AdminCommand) message()       {}
