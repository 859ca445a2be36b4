package runloop

import (
	"context"
	"errors"
)

// PlanExecuteRefine decomposes the task into a plan, executes it one subtask
// at a time, and reviews the remaining plan after every completed step
// except the last. The reviewer can finish the run early or replace the
// unexecuted plan tail.
type PlanExecuteRefine struct{}

func (*PlanExecuteRefine) Name() string { return "plan-execute" }

func (*PlanExecuteRefine) Options() OptionSchema {
	return OptionSchema{
		{Name: "max_steps", Kind: OptionInt, Default: 20,
			Description: "total subtasks executed before the run gives up"},
		{Name: "context_budget", Kind: OptionInt, Default: 16000,
			Description: "byte budget for prior-step outputs in a subtask prompt"},
		{Name: "refine", Kind: OptionBool, Default: true,
			Description: "review the plan after each completed step"},
	}
}

func (p *PlanExecuteRefine) Run(ctx context.Context, env Environment, req RunRequest) (RunResult, error) {
	s, err := newRunState(p.Name(), env, req, p.Options())
	if err != nil {
		return RunResult{}, err
	}

	s.stepBegin(StepEvent{Name: StepMakePlan, Label: s.label("plan.making")})
	plan, err := makePlan(ctx, s, req.Task)
	if err != nil {
		if errors.Is(err, errStopped) {
			s.ackStop(req.Task)
			return s.stopResult(""), nil
		}
		return s.finish(req.Task, s.failureText(StepMakePlan, err)), nil
	}
	s.stepEnd(StepEvent{Name: StepMakePlan, Label: s.label("plan.created", len(plan.SubTasks))})
	s.rc.StreamText = plan.Render()
	s.checkpoint(req.Task, false, false)

	execStep := StepEvent{Name: StepExecute, Label: s.label("execute.phase")}
	s.stepBegin(execStep)
	output, stopped := p.executePlan(ctx, s, req, plan)
	s.stepEnd(execStep)
	if stopped {
		return s.stopResult(output), nil
	}
	return s.finish(req.Task, output), nil
}

// executePlan walks the plan to completion. It returns the terminal output
// text, or stopped=true with the last accumulated answer when the run was
// stopped mid-plan; the stop has already been acknowledged in that case.
func (p *PlanExecuteRefine) executePlan(ctx context.Context, s *runState, req RunRequest, plan Plan) (string, bool) {
	maxSteps := optInt(s.opts, "max_steps")
	budget := optInt(s.opts, "context_budget")
	refine := optBool(s.opts, "refine")

	var history History
	lastOutput := ""
	executed := 0
	for i := 0; i < len(plan.SubTasks); i++ {
		if s.stopped(ctx) {
			s.ackStop(req.Task)
			return lastOutput, true
		}
		if executed >= maxSteps {
			output := s.label("run.maxrounds", maxSteps)
			if lastOutput != "" {
				output += "\n\n" + lastOutput
			}
			return output, false
		}

		st := plan.SubTasks[i]
		step := StepEvent{
			Name:  StepSubtask,
			Index: i + 1,
			Total: len(plan.SubTasks),
			Label: s.label("subtask.running", i+1, len(plan.SubTasks), st.Name),
		}
		s.stepBegin(step)
		completed, err := executeSubtask(ctx, s, req.Task, st, history, budget)
		if err != nil {
			s.ackStop(st.Input)
			return lastOutput, true
		}
		s.stepEnd(step)
		s.checkpoint(st.Input, false, s.req.Stream)

		history = append(history, completed)
		lastOutput = completed.Output
		executed++

		// The last subtask has no remaining plan to review.
		if !refine || i+1 >= len(plan.SubTasks) {
			continue
		}
		s.stepBegin(StepEvent{Name: StepRefinePlan, Label: s.label("refine.checking")})
		refinement, err := refinePlan(ctx, s, req.Task, plan, i+1, history)
		if err != nil {
			if errors.Is(err, errStopped) {
				s.ackStop(req.Task)
				return lastOutput, true
			}
			s.logger.Warn("plan review failed, keeping current plan")
			refinement = &PlanRefinement{SubTasks: plan.SubTasks[i+1:]}
		}
		s.stepEnd(StepEvent{Name: StepRefinePlan})

		if refinement.Done {
			s.stepBegin(StepEvent{Name: StepRefinePlan, Label: s.label("refine.done", refinement.Reason)})
			s.stepEnd(StepEvent{Name: StepRefinePlan})
			return lastOutput, false
		}

		updated, changed := spliceTail(plan, i+1, history.Names(), refinement.SubTasks)
		if changed {
			tail := Plan{SubTasks: updated.SubTasks[i+1:]}
			if err := tail.Validate(history.Names()); err != nil {
				s.logger.Warn("rejected invalid plan revision")
			} else {
				plan = updated
				s.stepBegin(StepEvent{Name: StepPlanUpdate, Label: s.label("plan.updated", refinement.Reason)})
				s.stepEnd(StepEvent{Name: StepPlanUpdate})
			}
		}
	}

	if lastOutput == "" {
		lastOutput = s.failureText(StepExecute, errors.New("plan produced no output"))
	}
	return lastOutput, false
}
