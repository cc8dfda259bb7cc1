package session

// Log lines appended by a Session. Notices are synthetic entries describing
// lifecycle events; the prefixes mark traffic.
const (
	NoticeConnected    = "System: Connected"
	NoticeNotConnected = "System: Not connected"
	NoticeSendFailed   = "System: Failed to send message"
	noticeErrorPrefix  = "System: Error: "

	SentPrefix     = "Sent: "
	ReceivedPrefix = "Received: "
)

// FailureNotice is the log line appended when a connection fails.
func FailureNotice(msg string) string {
	return noticeErrorPrefix + msg
}
