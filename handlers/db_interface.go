package handlers

// DBManager is the slice of the hosted database the webhook path needs.
type DBManager interface {
	IncrementMessageCount(roomID, accountID int64, day string) error
	ListTimeReportRooms() ([]int64, error)
}
