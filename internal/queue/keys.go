package queue

// Keys names the shared-store keys for one queue.
type Keys struct {
	Records    string
	Lease      string
	DeadLetter string
}

// KeysFor returns the keyset for a queue name.
// Format: dq/{name}/{records|lease|dlq}
func KeysFor(name string) Keys {
	return Keys{
		Records:    "dq/" + name + "/records",
		Lease:      "dq/" + name + "/lease",
		DeadLetter: "dq/" + name + "/dlq",
	}
}
