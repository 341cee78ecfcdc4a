package riot

// Routing values accepted by the account-v1 and match-v5 APIs
const (
	RoutingAmericas = "americas"
	RoutingEurope   = "europe"
	RoutingAsia     = "asia"
	RoutingSEA      = "sea"

	DefaultRouting  = RoutingEurope
	DefaultPlatform = "euw1"
)

// Queue IDs
const (
	QueueNormalDraft = 400
	QueueRankedSolo  = 420
	QueueNormalBlind = 430
	QueueRankedFlex  = 440
	QueueARAM        = 450
)

// MaxMatchCount is the largest page the match-ids endpoint returns
const MaxMatchCount = 100

var platformRouting = map[string]string{
	"na1":  RoutingAmericas,
	"br1":  RoutingAmericas,
	"la1":  RoutingAmericas,
	"la2":  RoutingAmericas,
	"euw1": RoutingEurope,
	"eun1": RoutingEurope,
	"tr1":  RoutingEurope,
	"ru":   RoutingEurope,
	"me1":  RoutingEurope,
	"kr":   RoutingAsia,
	"jp1":  RoutingAsia,
	"oc1":  RoutingSEA,
	"sg2":  RoutingSEA,
	"tw2":  RoutingSEA,
	"vn2":  RoutingSEA,
}

var queueNames = map[int]string{
	QueueNormalDraft: "Normal Draft",
	QueueRankedSolo:  "Ranked Solo/Duo",
	QueueNormalBlind: "Normal Blind",
	QueueRankedFlex:  "Ranked Flex",
	QueueARAM:        "ARAM",
}

// RoutingForPlatform returns the regional routing serving a platform ID
func RoutingForPlatform(platform string) (string, bool) {
	r, ok := platformRouting[platform]
	return r, ok
}

// IsValidRouting reports whether routing is a known regional routing value
func IsValidRouting(routing string) bool {
	switch routing {
	case RoutingAmericas, RoutingEurope, RoutingAsia, RoutingSEA:
		return true
	}
	return false
}

// QueueName returns a readable queue name, or "" for unknown queues
func QueueName(queueID int) string {
	return queueNames[queueID]
}
