// Package session holds the authentication state of a single dashboard view.
//
// A Store is mounted when a view connects: it checks the existing access
// token once, tracks whether an auth action is in flight, and follows
// provider events for its session. Closing the Store is the unmount.
//
//	st := session.New(provider, logger)
//	defer st.Close()
//	_ = st.Init(ctx, token)
//	sub := st.Subscribe(func(s session.State) { render(s) })
//	defer sub.Unsubscribe()
package session
