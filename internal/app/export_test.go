package app

// Subscriptions lists the topic/channel pairs Run will consume.
func (a *App) Subscriptions() [][2]string {
	out := make([][2]string, 0, len(a.subs))
	for _, s := range a.subs {
		out = append(out, [2]string{s.topic, s.channel})
	}
	return out
}
