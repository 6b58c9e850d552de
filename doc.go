// Package obc is the application core of the ingestion services: a service
// container with singleton, scoped and transient lifetimes, an ordered
// startup task pipeline and the Engine that composes them.
//
// A typical process initializes the engine once, starts it and resolves what
// it needs:
//
//	e := obc.Initialize()
//	if err := e.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer e.Stop(ctx)
//
//	todos, err := obc.Resolve[app.ITodoRepository](e)
//
// Startup tasks, entities and repositories are found through the modules
// registered with package discovery.
package obc
