package bootstrap

import (
	"github.com/credgate/credgate/internal/handlers"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	connection *handlers.ConnectionHandler
	grant      *handlers.GrantHandler
	broker     *handlers.BrokerHandler
	agent      *handlers.AgentHandler
	audit      *handlers.AuditHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(app *Application) handlerSet {
	return handlerSet{
		connection: handlers.NewConnectionHandler(app.FlowService, app.Providers),
		grant:      handlers.NewGrantHandler(app.GrantService, app.AgentService),
		broker:     handlers.NewBrokerHandler(app.BrokerService, app.GrantService),
		agent:      handlers.NewAgentHandler(app.AgentService),
		audit:      handlers.NewAuditHandler(app.AuditService),
	}
}
