package planner

// systemPrompt frames every planning call.
const systemPrompt = `You are the planning component of a railway operations assistant.
You break requests from operators and passengers into subtasks handled by specialist agents.
Respond with JSON only.`

// planPrompt is the template for the first planning round.
// Arguments: capability list, request, run context JSON, memory JSON.
const planPrompt = `Plan how to handle this request.

Available agents:
%s

Request:
%s

Context:
%s

What we remember about this user:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "request_type": "delay_management|capacity|passenger_service|document_check|general",
  "priority": "low|medium|high|critical",
  "subtasks": [
    {
      "task_id": "task_1",
      "description": "What this subtask does",
      "agent": "one of the agents listed above",
      "dependencies": ["task ids that must succeed first"],
      "execution_type": "sequential|parallel",
      "inputs": {"train_number": "12627", "delay_minutes": 45}
    }
  ],
  "expected_outcome": "What the caller receives when every subtask succeeds",
  "requires_clarification": false,
  "clarification_questions": []
}

Rules:
- task_id values must be unique.
- dependencies may only name task_id values from this plan.
- Mark a subtask parallel only when it can run alongside its siblings.
- If the request cannot be planned without more information, set requires_clarification
  to true and list the questions instead of subtasks.`

// replanPrompt is the template for a replanning round.
// Arguments: capability list, request, previous plan JSON, results JSON.
const replanPrompt = `Some subtasks of the plan below did not succeed. Propose a revised plan.

Available agents:
%s

Original request:
%s

Previous plan:
%s

Results so far:
%s

Return a JSON object with the same structure as the previous plan.
Include ONLY subtasks that have not succeeded yet, keeping their task_id values.
You may change their inputs, agent or execution_type to work around the failures.
Dependencies on succeeded subtasks are allowed and count as satisfied.`
