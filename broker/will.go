package broker

// sendWill publishes cl's last will, if it still has one, and clears it so
// a later clean DISCONNECT on the same connection (which should never
// happen once sendWill has run, but is cheap to guard against) can't
// publish it twice.
func (s *Server) sendWill(cl *ClientContext) {
	will := cl.Will()
	if will == nil {
		return
	}
	cl.ClearWill()

	if will.Retain {
		s.retained.Set(will.Topic, will.Payload, will.Qos)
	}
	s.publish(will.Topic, will.Payload, will.Qos, false)
	s.sink().WillPublished(cl.ID, will.Topic)
}
