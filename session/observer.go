package session

// Observer receives progress notifications from the coordinator and the
// transport. Calls may arrive from several goroutines at once.
type Observer interface {
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	AccessTokenRejected()
	TokenRefreshedRetrying()
}

type noopObserver struct{}

func (noopObserver) Refreshing()             {}
func (noopObserver) RefreshOK()              {}
func (noopObserver) RefreshFailed(_ error)   {}
func (noopObserver) AccessTokenRejected()    {}
func (noopObserver) TokenRefreshedRetrying() {}
