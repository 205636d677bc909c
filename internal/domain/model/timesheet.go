package model

import "time"

// Timesheet is one stored timesheet row. Field names follow the timesheets
// table; Record() produces the camelCase view the masking rules match on.
type Timesheet struct {
	TimesheetID   string    `db:"timesheet_id"   json:"timesheetId"`
	CountyCode    string    `db:"county_code"    json:"countyCode"`
	CountyName    string    `db:"county_name"    json:"countyName"`
	ProviderID    string    `db:"provider_id"    json:"providerId"`
	RecipientID   string    `db:"recipient_id"   json:"recipientId"`
	ProviderName  string    `db:"provider_name"  json:"providerName"`
	ProviderEmail string    `db:"provider_email" json:"providerEmail"`
	RecipientName string    `db:"recipient_name" json:"recipientName"`
	WorkedHours   float64   `db:"worked_hours"   json:"workedHours"`
	PaymentAmount float64   `db:"payment_amount" json:"paymentAmount"`
	Status        string    `db:"status"         json:"status"`
	ServiceDate   time.Time `db:"service_date"   json:"serviceDate"`
	CreatedAt     time.Time `db:"created_at"     json:"createdAt"`
}

// TimesheetStatus values for the status column.
const (
	TimesheetSubmitted = "SUBMITTED"
	TimesheetApproved  = "APPROVED"
	TimesheetRejected  = "REJECTED"
	TimesheetPaid      = "PAID"
)

// Record converts the row to its extraction field map. Service dates flatten
// to calendar-date strings so every output format renders them the same way.
func (t Timesheet) Record() Record {
	return Record{
		"timesheetId":   t.TimesheetID,
		"countyCode":    t.CountyCode,
		"countyName":    t.CountyName,
		"providerId":    t.ProviderID,
		"recipientId":   t.RecipientID,
		"providerName":  t.ProviderName,
		"providerEmail": t.ProviderEmail,
		"recipientName": t.RecipientName,
		"workedHours":   t.WorkedHours,
		"paymentAmount": t.PaymentAmount,
		"status":        t.Status,
		"serviceDate":   t.ServiceDate.Format("2006-01-02"),
		"createdAt":     t.CreatedAt.UTC(),
	}
}
