package projection

import (
	"encoding/json"
	"fmt"
)

// MaxMonths caps every iterative simulation (50 years).
const MaxMonths = 600

// MessageType selects the calculator for a message.
type MessageType string

const (
	CalculateFinancialHealth MessageType = "CALCULATE_FINANCIAL_HEALTH"
	CalculateDebtPayoff      MessageType = "CALCULATE_DEBT_PAYOFF"
	CalculateGoalProjections MessageType = "CALCULATE_GOAL_PROJECTIONS"
	AnalyzeSpendingPatterns  MessageType = "ANALYZE_SPENDING_PATTERNS"
)

// MessageTypes returns every supported message type.
func MessageTypes() []MessageType {
	return []MessageType{
		CalculateFinancialHealth,
		CalculateDebtPayoff,
		CalculateGoalProjections,
		AnalyzeSpendingPatterns,
	}
}

// Valid reports whether t names a calculator.
func (t MessageType) Valid() bool {
	switch t {
	case CalculateFinancialHealth, CalculateDebtPayoff, CalculateGoalProjections, AnalyzeSpendingPatterns:
		return true
	}
	return false
}

// ParseMessageType parses s as a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown projection type %q", s)
	}
	return t, nil
}

// Message is an inbound request.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
	ID   string          `json:"id"`
}

// ReplyType tags an outbound reply.
type ReplyType string

const (
	ReplyResult ReplyType = "RESULT"
	ReplyError  ReplyType = "ERROR"
)

// Reply is the outbound response to a Message with the same ID.
type Reply struct {
	Type   ReplyType       `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	ID     string          `json:"id"`

	err error
}

// Err returns the calculation error carried by an ERROR reply, or nil.
func (r Reply) Err() error {
	if r.Type != ReplyError {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return &CalculationError{Msg: r.Error}
}
