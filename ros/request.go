package ros

// ReplyHandler is invoked once per sentence dispatched to a request, in
// strict arrival order, from inside the wait primitive that read it.
type ReplyHandler func(request *Request, sentence *Sentence) error

// Request is one outstanding command. It is created by SendRequest and
// mutated only inside the owning client's dispatch step; once Done its state
// and accumulated replies never change.
type Request struct {
	tag         string
	command     string
	arguments   []string
	synchronous bool
	handler     ReplyHandler

	done    bool
	replies []*Sentence
}

// Tag returns the correlation tag assigned by the client.
func (request *Request) Tag() string { return request.tag }

// Command returns the command path this request was sent with.
func (request *Request) Command() string { return request.command }

// Arguments returns a copy of the argument words.
func (request *Request) Arguments() []string {
	arguments := make([]string, len(request.arguments))
	copy(arguments, request.arguments)
	return arguments
}

// Synchronous reports the caller's declared intent. The flag is advisory for
// layers above the engine and does not change dispatch behavior.
func (request *Request) Synchronous() bool { return request.synchronous }

// Done reports whether a terminating sentence has been dispatched.
func (request *Request) Done() bool { return request.done }

// Replies returns a snapshot of the accumulated sentences in arrival order.
func (request *Request) Replies() []*Sentence {
	replies := make([]*Sentence, len(request.replies))
	copy(replies, request.replies)
	return replies
}

func (request *Request) appendReply(sentence *Sentence) {
	request.replies = append(request.replies, sentence)
}

func (request *Request) markDone() {
	request.done = true
}
